package service

import (
	"github.com/pkg/errors"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/replication"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// UsersHandler serves USER_REGISTER/register and USER_LOGIN (spec section
// 6.2). Only registration produces a replication event; login is a local
// read-only check.
type UsersHandler struct {
	users *repo.UserRepo
	queue *replication.Queue
}

// NewUsersHandler builds a UsersHandler.
func NewUsersHandler(users *repo.UserRepo, queue *replication.Queue) *UsersHandler {
	return &UsersHandler{users: users, queue: queue}
}

// Handles reports whether action belongs to this handler's set.
func (h *UsersHandler) Handles(action wire.Action) bool {
	switch action {
	case wire.ActionUserRegister, wire.ActionRegister, wire.ActionUserLogin:
		return true
	default:
		return false
	}
}

type userCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Dispatch routes a decoded request to register or login.
func (h *UsersHandler) Dispatch(env *wire.Envelope) (map[string]interface{}, error) {
	switch env.Action {
	case wire.ActionUserRegister, wire.ActionRegister:
		return h.register(env)
	case wire.ActionUserLogin:
		return h.login(env)
	default:
		return nil, errors.Wrapf(ErrUnknownAction, "%s", env.Action)
	}
}

func (h *UsersHandler) register(env *wire.Envelope) (map[string]interface{}, error) {
	var req userCredentials
	if err := env.Bind("username", &req.Username); err != nil {
		return nil, err
	}
	if err := env.Bind("password", &req.Password); err != nil {
		return nil, err
	}

	u, err := h.users.Add(req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type:            wire.EventUserCreated,
		EntityID:        u.Username,
		OriginTimestamp: u.CreatedAt,
		Payload: map[string]interface{}{
			"username": u.Username,
			"password": u.Password,
		},
	})

	return map[string]interface{}{"username": u.Username}, nil
}

func (h *UsersHandler) login(env *wire.Envelope) (map[string]interface{}, error) {
	var req userCredentials
	if err := env.Bind("username", &req.Username); err != nil {
		return nil, err
	}
	if err := env.Bind("password", &req.Password); err != nil {
		return nil, err
	}

	if !h.users.CheckPassword(req.Username, req.Password) {
		return nil, errors.New("invalid username or password")
	}
	return map[string]interface{}{"username": req.Username}, nil
}
