package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

func TestFollowHandlerFollowAndGetFollowers(t *testing.T) {
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()
	_, err = users.Add("alice", "pw")
	require.NoError(t, err)
	_, err = users.Add("bob", "pw")
	require.NoError(t, err)

	q := newTestQueue(t)
	h := NewFollowHandler(users, q)

	followEnv := envelopeFrom(t, wire.ActionFollowUser, map[string]interface{}{
		"followerUsername": "alice", "followedUsername": "bob",
	})
	_, err = h.Dispatch(followEnv)
	require.NoError(t, err)

	getEnv := envelopeFrom(t, wire.ActionGetFollowers, map[string]interface{}{"username": "bob"})
	fields, err := h.Dispatch(getEnv)
	require.NoError(t, err)
	assert.Equal(t, 1, fields["count"])
}

func TestFollowHandlerGetFollowersReturnsCanonicalCasing(t *testing.T) {
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()
	_, err = users.Add("Alice", "pw")
	require.NoError(t, err)
	_, err = users.Add("Bob", "pw")
	require.NoError(t, err)

	q := newTestQueue(t)
	h := NewFollowHandler(users, q)

	followEnv := envelopeFrom(t, wire.ActionFollowUser, map[string]interface{}{
		"followerUsername": "alice", "followedUsername": "BOB",
	})
	_, err = h.Dispatch(followEnv)
	require.NoError(t, err)

	followersEnv := envelopeFrom(t, wire.ActionGetFollowers, map[string]interface{}{"username": "bob"})
	fields, err := h.Dispatch(followersEnv)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, fields["followers"])

	followingEnv := envelopeFrom(t, wire.ActionGetFollowing, map[string]interface{}{"username": "ALICE"})
	fields, err = h.Dispatch(followingEnv)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob"}, fields["following"])
}

func TestFollowHandlerRejectsSelfFollow(t *testing.T) {
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()
	_, err = users.Add("alice", "pw")
	require.NoError(t, err)

	q := newTestQueue(t)
	h := NewFollowHandler(users, q)

	env := envelopeFrom(t, wire.ActionFollowUser, map[string]interface{}{
		"followerUsername": "alice", "followedUsername": "alice",
	})
	_, err = h.Dispatch(env)
	assert.Error(t, err)
}
