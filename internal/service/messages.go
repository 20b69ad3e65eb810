package service

import (
	"github.com/pkg/errors"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/replication"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// MessagesHandler serves SEND_MESSAGE, MARK_AS_READ, GET_CONVERSATION, and
// GET_UNREAD_MESSAGES (spec section 6.2).
type MessagesHandler struct {
	messages *repo.MessageRepo
	queue    *replication.Queue
}

// NewMessagesHandler builds a MessagesHandler.
func NewMessagesHandler(messages *repo.MessageRepo, queue *replication.Queue) *MessagesHandler {
	return &MessagesHandler{messages: messages, queue: queue}
}

// Handles reports whether action belongs to this handler's set.
func (h *MessagesHandler) Handles(action wire.Action) bool {
	switch action {
	case wire.ActionSendMessage, wire.ActionMarkAsRead, wire.ActionGetConversation, wire.ActionGetUnreadMessages:
		return true
	default:
		return false
	}
}

// Dispatch routes a decoded request to the matching message operation.
func (h *MessagesHandler) Dispatch(env *wire.Envelope) (map[string]interface{}, error) {
	switch env.Action {
	case wire.ActionSendMessage:
		return h.send(env)
	case wire.ActionMarkAsRead:
		return h.markRead(env)
	case wire.ActionGetConversation:
		return h.getConversation(env)
	case wire.ActionGetUnreadMessages:
		return h.getUnread(env)
	default:
		return nil, errors.Wrapf(ErrUnknownAction, "%s", env.Action)
	}
}

func (h *MessagesHandler) send(env *wire.Envelope) (map[string]interface{}, error) {
	var sender, receiver, content string
	if err := env.Bind("senderUsername", &sender); err != nil {
		return nil, err
	}
	if err := env.Bind("receiverUsername", &receiver); err != nil {
		return nil, err
	}
	if err := env.Bind("content", &content); err != nil {
		return nil, err
	}

	m, err := h.messages.Add(sender, receiver, content)
	if err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type:            wire.EventMessageSent,
		EntityID:        m.MessageID,
		OriginTimestamp: m.SentAt,
		Payload: map[string]interface{}{
			"senderUsername":   m.SenderUsername,
			"receiverUsername": m.ReceiverUsername,
			"content":          m.Content,
			"read":             m.Read,
		},
	})

	return map[string]interface{}{"messageId": m.MessageID, "sentAt": m.SentAt}, nil
}

func (h *MessagesHandler) markRead(env *wire.Envelope) (map[string]interface{}, error) {
	var messageID, username string
	if err := env.Bind("messageId", &messageID); err != nil {
		return nil, err
	}
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}

	m, err := h.messages.MarkRead(messageID, username)
	if err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type:            wire.EventMessageRead,
		EntityID:        m.MessageID,
		OriginTimestamp: *m.ReadAt,
	})

	return map[string]interface{}{"messageId": m.MessageID, "readAt": m.ReadAt}, nil
}

func (h *MessagesHandler) getConversation(env *wire.Envelope) (map[string]interface{}, error) {
	var a, b string
	if err := env.Bind("username1", &a); err != nil {
		return nil, err
	}
	if err := env.Bind("username2", &b); err != nil {
		return nil, err
	}
	convo := h.messages.GetConversation(a, b)
	return map[string]interface{}{"messages": convo, "count": len(convo)}, nil
}

func (h *MessagesHandler) getUnread(env *wire.Envelope) (map[string]interface{}, error) {
	var username string
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}
	unread := h.messages.GetUnreadByReceiver(username)
	return map[string]interface{}{"messages": unread, "count": len(unread)}, nil
}
