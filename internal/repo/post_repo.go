package repo

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrPostNotFound is returned for operations on an unknown postId.
var ErrPostNotFound = errors.New("post not found")

// ErrNotAuthor is returned when a non-author attempts UPDATE_POST or
// DELETE_POST (spec section 6.2 ownership rules).
var ErrNotAuthor = errors.New("only the author may modify this post")

// PostRepo stores posts keyed by UUID postId.
type PostRepo struct {
	mu   sync.RWMutex
	data map[string]Post
	w    *wal[Post]
	snap *snapshotManager[Post]
}

// NewPostRepo opens or creates a post store under dataDir.
func NewPostRepo(dataDir string) (*PostRepo, error) {
	r := &PostRepo{data: make(map[string]Post)}
	r.snap = newSnapshotManager[Post](dataDir, "posts")

	loaded, err := r.snap.load()
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		r.data = loaded
	}

	w, err := newWAL[Post](filepath.Join(dataDir, "posts.wal.log"))
	if err != nil {
		return nil, err
	}
	r.w = w

	entries, err := w.readAll()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Op == opDelete {
			delete(r.data, e.Key)
			continue
		}
		r.data[e.Key] = e.Value
	}
	return r, nil
}

// Add creates a new post and returns it with a freshly generated postId.
func (r *PostRepo) Add(username, content string) (Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	p := Post{
		PostID:    uuid.NewString(),
		Username:  username,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.w.append(walEntry[Post]{Op: opPut, Key: p.PostID, Value: p}); err != nil {
		return Post{}, err
	}
	r.data[p.PostID] = p
	return p, nil
}

// CreateWithID is used by the replication applier for POST_CREATED: a
// no-op if a post by that id already exists locally (idempotent).
func (r *PostRepo) CreateWithID(p Post) (applied bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[p.PostID]; exists {
		return false, nil
	}
	if err := r.w.append(walEntry[Post]{Op: opPut, Key: p.PostID, Value: p}); err != nil {
		return false, err
	}
	r.data[p.PostID] = p
	return true, nil
}

// Update replaces a post's content; only the author may do this.
func (r *PostRepo) Update(postID, requester, content string) (Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.data[postID]
	if !ok {
		return Post{}, ErrPostNotFound
	}
	if !strings.EqualFold(p.Username, requester) {
		return Post{}, ErrNotAuthor
	}
	p.Content = content
	p.UpdatedAt = time.Now().UTC()

	if err := r.w.append(walEntry[Post]{Op: opPut, Key: postID, Value: p}); err != nil {
		return Post{}, err
	}
	r.data[postID] = p
	return p, nil
}

// ApplyUpdate is the replication-applier counterpart of Update: replace
// content if the post exists locally; otherwise the caller logs and drops
// (spec section 4.6).
func (r *PostRepo) ApplyUpdate(p Post) (applied bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[p.PostID]; !exists {
		return false, nil
	}
	if err := r.w.append(walEntry[Post]{Op: opPut, Key: p.PostID, Value: p}); err != nil {
		return false, err
	}
	r.data[p.PostID] = p
	return true, nil
}

// Delete removes a post; only the author may do this.
func (r *PostRepo) Delete(postID, requester string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.data[postID]
	if !ok {
		return ErrPostNotFound
	}
	if !strings.EqualFold(p.Username, requester) {
		return ErrNotAuthor
	}
	if err := r.w.append(walEntry[Post]{Op: opDelete, Key: postID}); err != nil {
		return err
	}
	delete(r.data, postID)
	return nil
}

// ApplyDelete deletes a post if present; otherwise it is a no-op (spec
// section 4.6 — idempotent regardless of delivery count).
func (r *PostRepo) ApplyDelete(postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[postID]; !ok {
		return nil
	}
	if err := r.w.append(walEntry[Post]{Op: opDelete, Key: postID}); err != nil {
		return err
	}
	delete(r.data, postID)
	return nil
}

// GetByID returns a single post.
func (r *PostRepo) GetByID(postID string) (Post, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.data[postID]
	return p, ok
}

// GetByUsername returns every post authored by username (compared
// case-insensitively, spec section 8), newest first.
func (r *PostRepo) GetByUsername(username string) []Post {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Post, 0)
	for _, p := range r.data {
		if strings.EqualFold(p.Username, username) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GetRecentPostsByUsers returns up to limit posts authored by any of
// usernames (compared case-insensitively, spec section 8), descending by
// createdAt (spec section 6.4).
func (r *PostRepo) GetRecentPostsByUsers(usernames []string, limit int) []Post {
	set := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		set[strings.ToLower(u)] = true
	}

	r.mu.RLock()
	out := make([]Post, 0)
	for _, p := range r.data {
		if set[strings.ToLower(p.Username)] {
			out = append(out, p)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Snapshot compacts the WAL into a point-in-time snapshot.
func (r *PostRepo) Snapshot() error {
	r.mu.RLock()
	cp := make(map[string]Post, len(r.data))
	for k, v := range r.data {
		cp[k] = v
	}
	r.mu.RUnlock()

	if err := r.snap.save(cp); err != nil {
		return err
	}
	return r.w.truncate()
}

// Close releases the underlying WAL file.
func (r *PostRepo) Close() error {
	return r.w.close()
}
