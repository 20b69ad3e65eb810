package repo

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrUserExists is returned by Add when the username is already taken.
var ErrUserExists = errors.New("user already exists")

// ErrUserNotFound is returned when a username has no matching record.
var ErrUserNotFound = errors.New("user not found")

// UserRepo stores users keyed case-insensitively by username. Every
// mutation is synchronous and durable (WAL-first) before it returns, per
// spec section 6.4.
type UserRepo struct {
	mu   sync.RWMutex
	data map[string]User // keyed by lowercased username
	w    *wal[User]
	snap *snapshotManager[User]
}

// NewUserRepo opens or creates a user store under dataDir.
func NewUserRepo(dataDir string) (*UserRepo, error) {
	r := &UserRepo{data: make(map[string]User)}
	r.snap = newSnapshotManager[User](dataDir, "users")

	loaded, err := r.snap.load()
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		r.data = loaded
	}

	w, err := newWAL[User](filepath.Join(dataDir, "users.wal.log"))
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

func key(username string) string {
	return strings.ToLower(username)
}

// Add creates a new user. It is an error if the username already exists
// (case-insensitively).
func (r *UserRepo) Add(username, password string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(username)
	if _, exists := r.data[k]; exists {
		return User{}, ErrUserExists
	}

	u := User{
		Username:  username,
		Password:  password,
		CreatedAt: time.Now().UTC(),
		Followers: make(map[string]bool),
		Following: make(map[string]bool),
	}
	if err := r.w.append(walEntry[User]{Op: opPut, Key: k, Value: u}); err != nil {
		return User{}, err
	}
	r.data[k] = u
	return u, nil
}

// Get returns the user by username, compared case-insensitively.
func (r *UserRepo) Get(username string) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.data[key(username)]
	return u, ok
}

// CheckPassword performs the spec's explicit out-of-scope authentication:
// plaintext password compare.
func (r *UserRepo) CheckPassword(username, password string) bool {
	u, ok := r.Get(username)
	return ok && u.Password == password
}

// CreateIfAbsent is used by the replication applier for USER_CREATED: it
// is a no-op if a local user by that name already exists (idempotent).
func (r *UserRepo) CreateIfAbsent(username, password string, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(username)
	if _, exists := r.data[k]; exists {
		return nil
	}
	u := User{
		Username:  username,
		Password:  password,
		CreatedAt: createdAt,
		Followers: make(map[string]bool),
		Following: make(map[string]bool),
	}
	if err := r.w.append(walEntry[User]{Op: opPut, Key: k, Value: u}); err != nil {
		return err
	}
	r.data[k] = u
	return nil
}

// Follow adds followerUsername to followedUsername's followers, and
// followedUsername to followerUsername's following. Rejects self-follow
// and duplicate follows (spec section 6.2 ownership/authorization rules).
func (r *UserRepo) Follow(followerUsername, followedUsername string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if key(followerUsername) == key(followedUsername) {
		return errors.New("cannot follow yourself")
	}

	fk, tk := key(followerUsername), key(followedUsername)
	follower, ok := r.data[fk]
	if !ok {
		return ErrUserNotFound
	}
	followed, ok := r.data[tk]
	if !ok {
		return ErrUserNotFound
	}
	if followed.Followers[fk] {
		return errors.New("already following")
	}

	return r.mutateFollowPair(fk, tk, follower, followed, true)
}

// Unfollow is the inverse of Follow; it is an error to unfollow someone
// not currently followed.
func (r *UserRepo) Unfollow(followerUsername, followedUsername string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fk, tk := key(followerUsername), key(followedUsername)
	follower, ok := r.data[fk]
	if !ok {
		return ErrUserNotFound
	}
	followed, ok := r.data[tk]
	if !ok {
		return ErrUserNotFound
	}
	if !followed.Followers[fk] {
		return errors.New("not following")
	}

	return r.mutateFollowPair(fk, tk, follower, followed, false)
}

func (r *UserRepo) mutateFollowPair(followerKey, followedKey string, follower, followed User, add bool) error {
	if add {
		follower.Following[followedKey] = true
		followed.Followers[followerKey] = true
	} else {
		delete(follower.Following, followedKey)
		delete(followed.Followers, followerKey)
	}

	if err := r.w.append(walEntry[User]{Op: opPut, Key: followerKey, Value: follower}); err != nil {
		return err
	}
	if err := r.w.append(walEntry[User]{Op: opPut, Key: followedKey, Value: followed}); err != nil {
		return err
	}
	r.data[followerKey] = follower
	r.data[followedKey] = followed
	return nil
}

// ApplyFollow is the idempotent replication-applier counterpart of Follow:
// if both users exist, mutate the sets; otherwise log-and-drop is the
// caller's responsibility (spec section 4.6). applied is false when either
// user is unknown or the pair is already in the requested state.
func (r *UserRepo) ApplyFollow(followerUsername, followedUsername string, add bool) (applied bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fk, tk := key(followerUsername), key(followedUsername)
	follower, ok1 := r.data[fk]
	followed, ok2 := r.data[tk]
	if !ok1 || !ok2 {
		return false, nil
	}

	already := followed.Followers[fk]
	if add == already {
		return false, nil // already in the desired state: idempotent no-op
	}

	if err := r.mutateFollowPair(fk, tk, follower, followed, add); err != nil {
		return false, err
	}
	return true, nil
}

// Followers returns the canonically-cased usernames following the given
// user. The Followers set is keyed by lowercased username internally, so
// each key is resolved back through the user table rather than returned
// as-is (spec section 8 case-insensitive-username invariant).
func (r *UserRepo) Followers(username string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.data[key(username)]
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(u.Followers))
	for f := range u.Followers {
		out = append(out, r.canonicalUsername(f))
	}
	return out, true
}

// Following returns the canonically-cased usernames the given user
// follows (see Followers).
func (r *UserRepo) Following(username string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.data[key(username)]
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(u.Following))
	for f := range u.Following {
		out = append(out, r.canonicalUsername(f))
	}
	return out, true
}

// canonicalUsername resolves a lowercased key back to the username as the
// owning account registered it. Callers must hold r.mu.
func (r *UserRepo) canonicalUsername(lowerKey string) string {
	if u, ok := r.data[lowerKey]; ok {
		return u.Username
	}
	return lowerKey
}

// Snapshot compacts the WAL into a point-in-time snapshot.
func (r *UserRepo) Snapshot() error {
	r.mu.RLock()
	cp := make(map[string]User, len(r.data))
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
func (r *UserRepo) Close() error {
	return r.w.close()
}
