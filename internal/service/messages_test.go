package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

func TestMessagesHandlerSendAndMarkRead(t *testing.T) {
	messages, err := repo.NewMessageRepo(t.TempDir())
	require.NoError(t, err)
	defer messages.Close()

	q := newTestQueue(t)
	h := NewMessagesHandler(messages, q)

	sendEnv := envelopeFrom(t, wire.ActionSendMessage, map[string]interface{}{
		"senderUsername": "alice", "receiverUsername": "bob", "content": "hi",
	})
	fields, err := h.Dispatch(sendEnv)
	require.NoError(t, err)
	messageID := fields["messageId"].(string)

	markEnv := envelopeFrom(t, wire.ActionMarkAsRead, map[string]interface{}{
		"messageId": messageID, "username": "bob",
	})
	fields, err = h.Dispatch(markEnv)
	require.NoError(t, err)
	assert.NotNil(t, fields["readAt"])

	_, err = h.Dispatch(markEnv)
	assert.ErrorIs(t, err, repo.ErrAlreadyRead)
}

func TestMessagesHandlerGetConversation(t *testing.T) {
	messages, err := repo.NewMessageRepo(t.TempDir())
	require.NoError(t, err)
	defer messages.Close()

	q := newTestQueue(t)
	h := NewMessagesHandler(messages, q)

	_, err = h.Dispatch(envelopeFrom(t, wire.ActionSendMessage, map[string]interface{}{
		"senderUsername": "alice", "receiverUsername": "bob", "content": "first",
	}))
	require.NoError(t, err)
	_, err = h.Dispatch(envelopeFrom(t, wire.ActionSendMessage, map[string]interface{}{
		"senderUsername": "bob", "receiverUsername": "alice", "content": "second",
	}))
	require.NoError(t, err)

	convoEnv := envelopeFrom(t, wire.ActionGetConversation, map[string]interface{}{
		"username1": "alice", "username2": "bob",
	})
	fields, err := h.Dispatch(convoEnv)
	require.NoError(t, err)
	assert.Equal(t, 2, fields["count"])
}
