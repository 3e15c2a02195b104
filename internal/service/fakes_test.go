package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"nearexpiry/internal/line"
	"nearexpiry/internal/models"
	"nearexpiry/internal/repository"
)

// memStore is an in-memory data store with the same compare-and-swap
// semantics as the SQL repository.
type memStore struct {
	mu     sync.Mutex
	posts  map[string]*models.Post
	events map[string]models.WebhookEvent
	users  map[string]models.LineUser

	failWrites error
	failCreate error
	// readBarrier, when set, holds GetOpenDraftForSender until every reader arrived.
	readBarrier *sync.WaitGroup
}

func newMemStore() *memStore {
	return &memStore{
		posts:  map[string]*models.Post{},
		events: map[string]models.WebhookEvent{},
		users:  map[string]models.LineUser{},
	}
}

func (m *memStore) repository() *repository.Repository {
	return &repository.Repository{Post: m, Event: m, LineUser: m}
}

func clonePost(p *models.Post) *models.Post {
	c := *p
	return &c
}

func (m *memStore) CreateDraft(_ context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	if m.failCreate != nil {
		return m.failCreate
	}
	if post.PostID == "" {
		post.PostID = uuid.New().String()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	m.posts[post.PostID] = clonePost(post)
	return nil
}

func (m *memStore) sorted() []*models.Post {
	out := make([]*models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) GetOpenDraftForSender(_ context.Context, senderID string, now time.Time) (*models.Post, error) {
	if m.readBarrier != nil {
		m.readBarrier.Done()
		m.readBarrier.Wait()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sorted() {
		if p.LineUserID == senderID && p.Status == models.StatusDraft &&
			p.PostTokenHash != nil && p.TokenExpiresAt != nil && p.TokenExpiresAt.After(now) {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (m *memStore) GetLapsedDraft(_ context.Context, senderID string, since time.Time) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sorted() {
		if p.LineUserID == senderID && p.Status == models.StatusDraft &&
			p.PostTokenHash != nil && p.TokenExpiresAt != nil && p.TokenExpiresAt.After(since) {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (m *memStore) ConditionallyUpdateDraft(_ context.Context, postID, expectedTokenHash string, patch models.DraftPatch, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	p, ok := m.posts[postID]
	if !ok || p.Status != models.StatusDraft || p.PostTokenHash == nil || *p.PostTokenHash != expectedTokenHash ||
		p.TokenExpiresAt == nil || !p.TokenExpiresAt.After(now) {
		return false, nil
	}
	p.SetFields(p.Fields().Merge(patch.Fields))
	p.ContentHash = patch.ContentHash
	p.PostTokenHash = patch.TokenHash
	p.TokenExpiresAt = patch.TokenExpiresAt
	return true, nil
}

func (m *memStore) MarkPublished(_ context.Context, postID string, publishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok || p.Status != models.StatusDraft {
		return repository.ErrNotDraft
	}
	p.Status = models.StatusPublished
	p.PublishedAt = &publishedAt
	p.PostTokenHash = nil
	p.TokenExpiresAt = nil
	return nil
}

func (m *memStore) RevokeSenderTokens(_ context.Context, senderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	for _, p := range m.posts {
		if p.LineUserID == senderID && p.Status == models.StatusDraft {
			p.PostTokenHash = nil
			p.TokenExpiresAt = nil
		}
	}
	return nil
}

func (m *memStore) FindRecentByContentHash(_ context.Context, senderID, contentHash string, since time.Time) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.sorted() {
		if p.LineUserID == senderID && p.ContentHash == contentHash && !p.CreatedAt.Before(since) {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (m *memStore) GetByID(_ context.Context, postID string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePost(p), nil
}

func (m *memStore) ListPublished(_ context.Context, limit, offset int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Post{}
	for _, p := range m.sorted() {
		if p.Status == models.StatusPublished {
			out = append(out, *p)
		}
	}
	if offset >= len(out) {
		return []models.Post{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountPublished(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.posts {
		if p.Status == models.StatusPublished {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkProcessed(_ context.Context, event *models.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	if _, ok := m.events[event.EventID]; ok {
		return false, nil
	}
	m.events[event.EventID] = *event
	return true, nil
}

func (m *memStore) Follow(_ context.Context, userID, displayName string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = models.LineUser{LineUserID: userID, DisplayName: displayName, Following: true, FollowedAt: at, UpdatedAt: at}
	return nil
}

func (m *memStore) Unfollow(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.LineUserID = userID
	u.Following = false
	u.UpdatedAt = at
	u.UnfollowAt = &at
	m.users[userID] = u
	return nil
}

func (m *memStore) postsBySender(senderID string) []*models.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Post
	for _, p := range m.sorted() {
		if p.LineUserID == senderID {
			out = append(out, clonePost(p))
		}
	}
	return out
}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) Reply(ctx context.Context, replyToken, text string) error {
	args := m.Called(ctx, replyToken, text)
	return args.Error(0)
}

func (m *mockMessenger) Push(ctx context.Context, to, text string) error {
	args := m.Called(ctx, to, text)
	return args.Error(0)
}

func (m *mockMessenger) DisplayName(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockMessenger) Content(ctx context.Context, messageID string) (*line.Content, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*line.Content), args.Error(1)
}

// replies returns the text of every Reply call, in call order.
func (m *mockMessenger) replies() []string {
	var out []string
	for _, call := range m.Calls {
		if call.Method == "Reply" {
			out = append(out, call.Arguments.String(2))
		}
	}
	return out
}

type fakeStorage struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	deleted  []string
	err      error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (f *fakeStorage) UploadImage(_ context.Context, postID, fileName, _ string, file io.Reader, _ int64) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", "", f.err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", "", err
	}
	objectName := "posts/" + postID + "/" + fileName + ".jpg"
	f.uploaded[objectName] = data
	return objectName, "http://minio.local/images/" + objectName, nil
}

func (f *fakeStorage) DeleteImage(_ context.Context, objectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, objectName)
	delete(f.uploaded, objectName)
	return nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []Reminder
	err       error
}

func (f *fakeScheduler) Schedule(_ context.Context, r Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, r)
	return nil
}

func (f *fakeScheduler) Due(_ context.Context, now time.Time, limit int64) ([]Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var due, rest []Reminder
	for _, r := range f.scheduled {
		if !r.DueAt.After(now) && int64(len(due)) < limit {
			due = append(due, r)
		} else {
			rest = append(rest, r)
		}
	}
	f.scheduled = rest
	return due, nil
}

func imageContent(data string) *line.Content {
	return &line.Content{
		Body:        io.NopCloser(bytes.NewReader([]byte(data))),
		ContentType: "image/jpeg",
		Size:        int64(len(data)),
	}
}

var errStoreDown = errors.New("connection refused")
