package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostCRUDRoundTrip(t *testing.T) {
	r, err := NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	p, err := r.Add("alice", "hello world")
	require.NoError(t, err)

	got, ok := r.GetByID(p.PostID)
	require.True(t, ok)
	assert.Equal(t, "hello world", got.Content)

	updated, err := r.Update(p.PostID, "alice", "hello again")
	require.NoError(t, err)
	assert.Equal(t, "hello again", updated.Content)
	assert.False(t, updated.UpdatedAt.Before(updated.CreatedAt))

	require.NoError(t, r.Delete(p.PostID, "alice"))
	_, ok = r.GetByID(p.PostID)
	assert.False(t, ok)
}

func TestPostUpdateRejectsNonAuthor(t *testing.T) {
	r, err := NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	p, err := r.Add("alice", "content")
	require.NoError(t, err)

	_, err = r.Update(p.PostID, "mallory", "hacked")
	assert.ErrorIs(t, err, ErrNotAuthor)

	err = r.Delete(p.PostID, "mallory")
	assert.ErrorIs(t, err, ErrNotAuthor)
}

func TestPostDeleteIsIdempotent(t *testing.T) {
	r, err := NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	p, err := r.Add("alice", "content")
	require.NoError(t, err)

	require.NoError(t, r.Delete(p.PostID, "alice"))
	// Applier-style delete is a no-op the second time, not an error.
	require.NoError(t, r.ApplyDelete(p.PostID))
}

func TestPostCreatedEventAppliedTwiceProducesOnePost(t *testing.T) {
	r, err := NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	p := Post{PostID: "fixed-id", Username: "alice", Content: "x"}
	applied1, err := r.CreateWithID(p)
	require.NoError(t, err)
	assert.True(t, applied1)

	applied2, err := r.CreateWithID(p)
	require.NoError(t, err)
	assert.False(t, applied2)

	assert.Len(t, r.data, 1)
}

func TestGetRecentPostsByUsersOrderingAndLimit(t *testing.T) {
	r, err := NewPostRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	for i := 0; i < 5; i++ {
		_, err := r.Add("alice", "post")
		require.NoError(t, err)
	}

	posts := r.GetRecentPostsByUsers([]string{"alice", "bob"}, 3)
	assert.Len(t, posts, 3)
	for i := 1; i < len(posts); i++ {
		assert.False(t, posts[i].CreatedAt.After(posts[i-1].CreatedAt))
	}
}
