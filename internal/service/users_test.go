package service

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppriyankuu/social-mesh/internal/peer"
	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/replication"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

func newTestQueue(t *testing.T) *replication.Queue {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	table := peer.New("node-a")
	return replication.New(log, "node-a", table, nil)
}

func envelopeFrom(t *testing.T, action wire.Action, fields map[string]interface{}) *wire.Envelope {
	t.Helper()
	payload, err := wire.Request(action, 0, fields)
	require.NoError(t, err)
	env, err := wire.Decode(payload)
	require.NoError(t, err)
	return env
}

func TestUsersHandlerRegisterReturnsUsername(t *testing.T) {
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()

	q := newTestQueue(t)
	h := NewUsersHandler(users, q)

	env := envelopeFrom(t, wire.ActionUserRegister, map[string]interface{}{
		"username": "alice",
		"password": "hunter2",
	})

	fields, err := h.Dispatch(env)
	require.NoError(t, err)
	assert.Equal(t, "alice", fields["username"])
}

func TestUsersHandlerRegisterRejectsDuplicate(t *testing.T) {
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()

	q := newTestQueue(t)
	h := NewUsersHandler(users, q)

	env := envelopeFrom(t, wire.ActionUserRegister, map[string]interface{}{
		"username": "alice", "password": "pw",
	})
	_, err = h.Dispatch(env)
	require.NoError(t, err)

	_, err = h.Dispatch(env)
	assert.ErrorIs(t, err, repo.ErrUserExists)
}

func TestUsersHandlerLoginRejectsBadPassword(t *testing.T) {
	users, err := repo.NewUserRepo(t.TempDir())
	require.NoError(t, err)
	defer users.Close()

	q := newTestQueue(t)
	h := NewUsersHandler(users, q)

	reg := envelopeFrom(t, wire.ActionUserRegister, map[string]interface{}{
		"username": "alice", "password": "pw",
	})
	_, err = h.Dispatch(reg)
	require.NoError(t, err)

	login := envelopeFrom(t, wire.ActionUserLogin, map[string]interface{}{
		"username": "alice", "password": "wrong",
	})
	_, err = h.Dispatch(login)
	assert.Error(t, err)
}

func TestUsersHandlerHandles(t *testing.T) {
	h := NewUsersHandler(nil, nil)
	assert.True(t, h.Handles(wire.ActionUserRegister))
	assert.True(t, h.Handles(wire.ActionRegister))
	assert.True(t, h.Handles(wire.ActionUserLogin))
	assert.False(t, h.Handles(wire.ActionCreatePost))
}
