package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

func TestPostsHandlerCreateUpdateDelete(t *testing.T) {
	posts, err := repo.NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer posts.Close()
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()

	q := newTestQueue(t)
	h := NewPostsHandler(posts, users, q)

	createEnv := envelopeFrom(t, wire.ActionCreatePost, map[string]interface{}{
		"username": "alice", "content": "hello",
	})
	fields, err := h.Dispatch(createEnv)
	require.NoError(t, err)
	postID := fields["postId"].(string)
	require.NotEmpty(t, postID)

	updateEnv := envelopeFrom(t, wire.ActionUpdatePost, map[string]interface{}{
		"postId": postID, "username": "alice", "content": "hello again",
	})
	_, err = h.Dispatch(updateEnv)
	require.NoError(t, err)

	deleteEnv := envelopeFrom(t, wire.ActionDeletePost, map[string]interface{}{
		"postId": postID, "username": "alice",
	})
	_, err = h.Dispatch(deleteEnv)
	require.NoError(t, err)

	_, ok := posts.GetByID(postID)
	assert.False(t, ok)
}

func TestPostsHandlerUpdateRejectsNonAuthor(t *testing.T) {
	posts, err := repo.NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer posts.Close()
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()

	q := newTestQueue(t)
	h := NewPostsHandler(posts, users, q)

	createEnv := envelopeFrom(t, wire.ActionCreatePost, map[string]interface{}{
		"username": "alice", "content": "hello",
	})
	fields, err := h.Dispatch(createEnv)
	require.NoError(t, err)
	postID := fields["postId"].(string)

	updateEnv := envelopeFrom(t, wire.ActionUpdatePost, map[string]interface{}{
		"postId": postID, "username": "mallory", "content": "hacked",
	})
	_, err = h.Dispatch(updateEnv)
	assert.ErrorIs(t, err, repo.ErrNotAuthor)
}

func TestPostsHandlerFeedIncludesSelfAndFollowing(t *testing.T) {
	posts, err := repo.NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer posts.Close()
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()

	_, err = users.Add("alice", "pw")
	require.NoError(t, err)
	_, err = users.Add("bob", "pw")
	require.NoError(t, err)
	require.NoError(t, users.Follow("alice", "bob"))

	q := newTestQueue(t)
	h := NewPostsHandler(posts, users, q)

	_, err = h.Dispatch(envelopeFrom(t, wire.ActionCreatePost, map[string]interface{}{
		"username": "bob", "content": "from bob",
	}))
	require.NoError(t, err)
	_, err = h.Dispatch(envelopeFrom(t, wire.ActionCreatePost, map[string]interface{}{
		"username": "alice", "content": "from alice",
	}))
	require.NoError(t, err)

	feedEnv := envelopeFrom(t, wire.ActionGetFeed, map[string]interface{}{"username": "alice"})
	fields, err := h.Dispatch(feedEnv)
	require.NoError(t, err)
	assert.Equal(t, 2, fields["count"])
}

func TestPostsHandlerFeedMatchesPostsRegardlessOfUsernameCasing(t *testing.T) {
	posts, err := repo.NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer posts.Close()
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()

	_, err = users.Add("alice", "pw")
	require.NoError(t, err)
	_, err = users.Add("Bob", "pw")
	require.NoError(t, err)
	require.NoError(t, users.Follow("alice", "bob"))

	q := newTestQueue(t)
	h := NewPostsHandler(posts, users, q)

	_, err = h.Dispatch(envelopeFrom(t, wire.ActionCreatePost, map[string]interface{}{
		"username": "Bob", "content": "from bob",
	}))
	require.NoError(t, err)

	feedEnv := envelopeFrom(t, wire.ActionGetFeed, map[string]interface{}{"username": "alice"})
	fields, err := h.Dispatch(feedEnv)
	require.NoError(t, err)
	assert.Equal(t, 1, fields["count"])
}
