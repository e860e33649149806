// Package mock provides in-memory repositories for tests.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emilythestrangee/threaddit/backend/internal/models"
	"github.com/emilythestrangee/threaddit/backend/internal/repository"
)

type UserRepository struct {
	mutex  sync.RWMutex
	users  map[uint]models.User
	nextID uint

	// Err, when set, is returned by every call.
	Err error
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uint]models.User), nextID: 1}
}

func (m *UserRepository) Create(_ context.Context, user *models.User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.Err != nil {
		return m.Err
	}
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.ID = m.nextID
	m.nextID++
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = *user
	return nil
}

func (m *UserRepository) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *UserRepository) FindByID(_ context.Context, id uint) (*models.User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (m *UserRepository) lookup(id uint) models.User {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.users[id]
}

// PostRepository stores posts in memory and populates authors from users.
type PostRepository struct {
	mutex         sync.RWMutex
	users         *UserRepository
	posts         map[uint]*models.Post
	nextPostID    uint
	nextCommentID uint
	nextVoteID    uint
	clock         time.Time

	// Err, when set, is returned by every call.
	Err error

	Calls map[string]int
}

func NewPostRepository(users *UserRepository) *PostRepository {
	return &PostRepository{
		users:         users,
		posts:         make(map[uint]*models.Post),
		nextPostID:    1,
		nextCommentID: 1,
		nextVoteID:    1,
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Calls:         make(map[string]int),
	}
}

// now hands out strictly increasing timestamps so ordering is deterministic.
func (m *PostRepository) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *PostRepository) record(call string) error {
	m.Calls[call]++
	return m.Err
}

func (m *PostRepository) populate(p *models.Post) models.Post {
	out := *p
	out.Author = m.users.lookup(p.AuthorID)
	out.Votes = append([]models.Vote(nil), p.Votes...)
	out.Comments = make([]models.Comment, len(p.Comments))
	for i, c := range p.Comments {
		c.Author = m.users.lookup(c.AuthorID)
		out.Comments[i] = c
	}
	return out
}

func (m *PostRepository) List(_ context.Context) ([]models.Post, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.record("List"); err != nil {
		return nil, err
	}
	posts := make([]models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		posts = append(posts, m.populate(p))
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

func (m *PostRepository) Get(_ context.Context, id uint) (*models.Post, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.record("Get"); err != nil {
		return nil, err
	}
	p, ok := m.posts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := m.populate(p)
	return &out, nil
}

func (m *PostRepository) Create(_ context.Context, post *models.Post) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.record("Create"); err != nil {
		return err
	}
	stored := &models.Post{
		ID:        m.nextPostID,
		Title:     post.Title,
		Body:      post.Body,
		AuthorID:  post.AuthorID,
		CreatedAt: m.now(),
	}
	stored.UpdatedAt = stored.CreatedAt
	m.nextPostID++
	m.posts[stored.ID] = stored
	*post = m.populate(stored)
	return nil
}

func (m *PostRepository) ToggleVote(_ context.Context, postID, userID uint, dir models.VoteType) (*models.Post, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.record("ToggleVote"); err != nil {
		return nil, err
	}
	p, ok := m.posts[postID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	current, idx := models.NoVote, -1
	for i, v := range p.Votes {
		if v.UserID == userID {
			current, idx = v.VoteType, i
			break
		}
	}

	next := models.ToggleVote(current, dir)
	switch {
	case next == models.NoVote:
		p.Votes = append(p.Votes[:idx], p.Votes[idx+1:]...)
	case idx < 0:
		p.Votes = append(p.Votes, models.Vote{ID: m.nextVoteID, UserID: userID, PostID: postID, VoteType: next})
		m.nextVoteID++
	default:
		p.Votes[idx].VoteType = next
	}

	out := m.populate(p)
	return &out, nil
}

func (m *PostRepository) AddComment(_ context.Context, comment *models.Comment) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := m.record("AddComment"); err != nil {
		return err
	}
	p, ok := m.posts[comment.PostID]
	if !ok {
		return repository.ErrNotFound
	}
	comment.ID = m.nextCommentID
	m.nextCommentID++
	comment.CreatedAt = m.now()
	p.Comments = append(p.Comments, *comment)
	comment.Author = m.users.lookup(comment.AuthorID)
	return nil
}
