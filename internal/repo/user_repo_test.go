package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepoCaseInsensitiveLookup(t *testing.T) {
	r, err := NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Add("Alice", "hunter2")
	require.NoError(t, err)

	a, ok := r.Get("Alice")
	require.True(t, ok)
	b, ok := r.Get("alice")
	require.True(t, ok)
	assert.Equal(t, a.Username, b.Username)
}

func TestUserRepoAddRejectsDuplicate(t *testing.T) {
	r, err := NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Add("bob", "pw")
	require.NoError(t, err)
	_, err = r.Add("BOB", "pw2")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestFollowSymmetryAndUnfollow(t *testing.T) {
	r, err := NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	_, _ = r.Add("alice", "pw")
	_, _ = r.Add("bob", "pw")

	require.NoError(t, r.Follow("alice", "bob"))

	followers, _ := r.Followers("bob")
	following, _ := r.Following("alice")
	assert.Contains(t, followers, "alice")
	assert.Contains(t, following, "bob")

	require.NoError(t, r.Unfollow("alice", "bob"))
	followers, _ = r.Followers("bob")
	following, _ = r.Following("alice")
	assert.NotContains(t, followers, "alice")
	assert.NotContains(t, following, "bob")
}

func TestFollowRejectsSelfAndDuplicate(t *testing.T) {
	r, err := NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	_, _ = r.Add("alice", "pw")
	assert.Error(t, r.Follow("alice", "alice"))

	_, _ = r.Add("bob", "pw")
	require.NoError(t, r.Follow("alice", "bob"))
	assert.Error(t, r.Follow("alice", "bob"))
}

func TestUserCreatedEventAppliedTwiceProducesOneUser(t *testing.T) {
	r, err := NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.CreateIfAbsent("alice", "pw", time.Now().UTC()))
	require.NoError(t, r.CreateIfAbsent("alice", "pw", time.Now().UTC()))

	u, ok := r.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)
	assert.Len(t, r.data, 1)
}
