package replication

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

func newTestApplier(t *testing.T) (*Applier, *repo.UserRepo, *repo.PostRepo, *repo.MessageRepo) {
	t.Helper()
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	posts, err := repo.NewPostRepo(t.TempDir())
	require.NoError(t, err)
	messages, err := repo.NewMessageRepo(t.TempDir())
	require.NoError(t, err)

	log := logrus.NewEntry(logrus.New())
	return NewApplier(log, users, posts, messages), users, posts, messages
}

func TestApplyUserCreatedIsIdempotent(t *testing.T) {
	a, users, _, _ := newTestApplier(t)

	e := Event{
		Type:            wire.EventUserCreated,
		EntityID:        "alice",
		OriginTimestamp: time.Now().UTC(),
		Payload:         map[string]interface{}{"username": "alice", "password": "pw"},
	}

	applied, err := a.Apply(e)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = a.Apply(e)
	require.NoError(t, err)
	assert.False(t, applied)

	_, ok := users.Get("alice")
	assert.True(t, ok)
}

func TestApplyFollowDropsUnknownUsers(t *testing.T) {
	a, _, _, _ := newTestApplier(t)

	e := Event{
		Type:            wire.EventFollowAdded,
		OriginTimestamp: time.Now().UTC(),
		Payload:         map[string]interface{}{"followerUsername": "ghost", "followedUsername": "nobody"},
	}

	applied, err := a.Apply(e)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestApplyPostCreatedThenDeleteIsIdempotent(t *testing.T) {
	a, _, posts, _ := newTestApplier(t)

	created := Event{
		Type:            wire.EventPostCreated,
		EntityID:        "post-1",
		OriginTimestamp: time.Now().UTC(),
		Payload:         map[string]interface{}{"username": "alice", "content": "hi"},
	}
	applied, err := a.Apply(created)
	require.NoError(t, err)
	assert.True(t, applied)

	_, ok := posts.GetByID("post-1")
	assert.True(t, ok)

	deleted := Event{Type: wire.EventPostDeleted, EntityID: "post-1", OriginTimestamp: time.Now().UTC()}
	_, err = a.Apply(deleted)
	require.NoError(t, err)
	_, err = a.Apply(deleted)
	require.NoError(t, err)

	_, ok = posts.GetByID("post-1")
	assert.False(t, ok)
}

func TestApplyMessageSentRespectsReadFlag(t *testing.T) {
	a, _, _, messages := newTestApplier(t)

	e := Event{
		Type:            wire.EventMessageSent,
		EntityID:        "msg-1",
		OriginTimestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"senderUsername":   "alice",
			"receiverUsername": "bob",
			"content":          "hey",
			"read":             true,
		},
	}
	applied, err := a.Apply(e)
	require.NoError(t, err)
	assert.True(t, applied)

	got, ok := messages.GetByID("msg-1")
	require.True(t, ok)
	assert.True(t, got.Read)
	require.NotNil(t, got.ReadAt)
}

func TestApplyMessageReadIsIdempotentAndDropsUnknownMessage(t *testing.T) {
	a, _, _, messages := newTestApplier(t)

	unknown := Event{Type: wire.EventMessageRead, EntityID: "ghost", OriginTimestamp: time.Now().UTC()}
	applied, err := a.Apply(unknown)
	require.NoError(t, err)
	assert.False(t, applied)

	sent := Event{
		Type:            wire.EventMessageSent,
		EntityID:        "msg-2",
		OriginTimestamp: time.Now().UTC(),
		Payload: map[string]interface{}{
			"senderUsername":   "alice",
			"receiverUsername": "bob",
			"content":          "hey",
			"read":             false,
		},
	}
	_, err = a.Apply(sent)
	require.NoError(t, err)

	readAt := time.Now().UTC()
	read := Event{Type: wire.EventMessageRead, EntityID: "msg-2", OriginTimestamp: readAt}
	applied, err = a.Apply(read)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = a.Apply(read)
	require.NoError(t, err)
	assert.False(t, applied)

	got, ok := messages.GetByID("msg-2")
	require.True(t, ok)
	assert.True(t, got.Read)
	require.NotNil(t, got.ReadAt)
}
