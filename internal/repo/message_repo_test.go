package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAsReadIdempotentInEffect(t *testing.T) {
	r, err := NewMessageRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	m, err := r.Add("alice", "bob", "hi")
	require.NoError(t, err)

	read1, err := r.MarkRead(m.MessageID, "bob")
	require.NoError(t, err)
	require.NotNil(t, read1.ReadAt)
	firstReadAt := *read1.ReadAt

	_, err = r.MarkRead(m.MessageID, "bob")
	assert.ErrorIs(t, err, ErrAlreadyRead)

	got, ok := r.GetByID(m.MessageID)
	require.True(t, ok)
	assert.True(t, got.Read)
	assert.Equal(t, firstReadAt, *got.ReadAt)
}

func TestMarkAsReadRejectsNonRecipient(t *testing.T) {
	r, err := NewMessageRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	m, err := r.Add("alice", "bob", "hi")
	require.NoError(t, err)

	_, err = r.MarkRead(m.MessageID, "mallory")
	assert.ErrorIs(t, err, ErrNotRecipient)
}

func TestGetConversationAscendingAndSymmetric(t *testing.T) {
	r, err := NewMessageRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Add("alice", "bob", "first")
	require.NoError(t, err)
	_, err = r.Add("bob", "alice", "second")
	require.NoError(t, err)

	convo := r.GetConversation("alice", "bob")
	require.Len(t, convo, 2)
	assert.Equal(t, "first", convo[0].Content)
	assert.Equal(t, "second", convo[1].Content)

	reversed := r.GetConversation("bob", "alice")
	assert.Len(t, reversed, 2)
}

func TestGetUnreadByReceiver(t *testing.T) {
	r, err := NewMessageRepo(t.TempDir())
	require.NoError(t, err)
	defer r.Close()

	m1, err := r.Add("alice", "bob", "one")
	require.NoError(t, err)
	_, err = r.Add("alice", "bob", "two")
	require.NoError(t, err)

	_, err = r.MarkRead(m1.MessageID, "bob")
	require.NoError(t, err)

	unread := r.GetUnreadByReceiver("bob")
	require.Len(t, unread, 1)
	assert.Equal(t, "two", unread[0].Content)
}
