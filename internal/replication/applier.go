package replication

import (
	"github.com/sirupsen/logrus"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// Applier dispatches inbound replication events against the local
// repositories. Apply is idempotent per event type (spec section 4.6):
// duplicate delivery never double-applies, and a reference to an entity
// that does not yet exist locally is logged and dropped rather than
// treated as an error worth retrying.
type Applier struct {
	log      *logrus.Entry
	users    *repo.UserRepo
	posts    *repo.PostRepo
	messages *repo.MessageRepo
}

// NewApplier builds an Applier over the three entity repositories.
func NewApplier(log *logrus.Entry, users *repo.UserRepo, posts *repo.PostRepo, messages *repo.MessageRepo) *Applier {
	return &Applier{log: log, users: users, posts: posts, messages: messages}
}

// Apply applies a single inbound Event. The bool return reports whether
// the event actually changed local state; it is informational only, the
// caller never retries on false.
func (a *Applier) Apply(e Event) (bool, error) {
	switch e.Type {
	case wire.EventUserCreated:
		return a.applyUserCreated(e)
	case wire.EventFollowAdded:
		return a.applyFollow(e, true)
	case wire.EventFollowRemoved:
		return a.applyFollow(e, false)
	case wire.EventPostCreated:
		return a.applyPostCreated(e)
	case wire.EventPostUpdated:
		return a.applyPostUpdated(e)
	case wire.EventPostDeleted:
		return false, a.applyPostDeleted(e)
	case wire.EventMessageSent:
		return a.applyMessageSent(e)
	case wire.EventMessageRead:
		return a.applyMessageRead(e)
	default:
		a.log.WithField("eventType", e.Type).Warn("replication: unknown event type, dropping")
		return false, nil
	}
}

func (a *Applier) applyUserCreated(e Event) (bool, error) {
	username, _ := e.Payload["username"].(string)
	password, _ := e.Payload["password"].(string)
	createdAt := e.OriginTimestamp
	if _, ok := a.users.Get(username); ok {
		return false, nil
	}
	if err := a.users.CreateIfAbsent(username, password, createdAt); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Applier) applyFollow(e Event, add bool) (bool, error) {
	follower, _ := e.Payload["followerUsername"].(string)
	followed, _ := e.Payload["followedUsername"].(string)

	applied, err := a.users.ApplyFollow(follower, followed, add)
	if err != nil {
		return false, err
	}
	if !applied {
		a.log.WithFields(logrus.Fields{
			"follower": follower,
			"followed": followed,
		}).Warn("replication: follow event references unknown user or is already applied, dropping")
	}
	return applied, nil
}

func (a *Applier) applyPostCreated(e Event) (bool, error) {
	content, _ := e.Payload["content"].(string)
	username, _ := e.Payload["username"].(string)
	p := repo.Post{
		PostID:    e.EntityID,
		Username:  username,
		Content:   content,
		CreatedAt: e.OriginTimestamp,
		UpdatedAt: e.OriginTimestamp,
	}
	return a.posts.CreateWithID(p)
}

func (a *Applier) applyPostUpdated(e Event) (bool, error) {
	current, ok := a.posts.GetByID(e.EntityID)
	if !ok {
		a.log.WithField("postId", e.EntityID).Warn("replication: update for unknown post, dropping")
		return false, nil
	}
	content, _ := e.Payload["content"].(string)
	current.Content = content
	current.UpdatedAt = e.OriginTimestamp
	return a.posts.ApplyUpdate(current)
}

func (a *Applier) applyPostDeleted(e Event) error {
	return a.posts.ApplyDelete(e.EntityID)
}

func (a *Applier) applyMessageSent(e Event) (bool, error) {
	sender, _ := e.Payload["senderUsername"].(string)
	receiver, _ := e.Payload["receiverUsername"].(string)
	content, _ := e.Payload["content"].(string)
	read, _ := e.Payload["read"].(bool)

	m := repo.Message{
		MessageID:        e.EntityID,
		SenderUsername:   sender,
		ReceiverUsername: receiver,
		Content:          content,
		SentAt:           e.OriginTimestamp,
		Read:             read,
	}
	if read {
		t := e.OriginTimestamp
		m.ReadAt = &t
	}
	return a.messages.CreateWithID(m)
}

func (a *Applier) applyMessageRead(e Event) (bool, error) {
	applied, err := a.messages.ApplyRead(e.EntityID, e.OriginTimestamp)
	if err != nil {
		return false, err
	}
	if !applied {
		a.log.WithField("messageId", e.EntityID).Warn("replication: read event for unknown or already-read message, dropping")
	}
	return applied, nil
}
