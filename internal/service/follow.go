package service

import (
	"github.com/pkg/errors"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/replication"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

// FollowHandler serves FOLLOW_USER, UNFOLLOW_USER, GET_FOLLOWERS, and
// GET_FOLLOWING (spec section 6.2).
type FollowHandler struct {
	users *repo.UserRepo
	queue *replication.Queue
}

// NewFollowHandler builds a FollowHandler.
func NewFollowHandler(users *repo.UserRepo, queue *replication.Queue) *FollowHandler {
	return &FollowHandler{users: users, queue: queue}
}

// Handles reports whether action belongs to this handler's set.
func (h *FollowHandler) Handles(action wire.Action) bool {
	switch action {
	case wire.ActionFollowUser, wire.ActionUnfollowUser, wire.ActionGetFollowers, wire.ActionGetFollowing:
		return true
	default:
		return false
	}
}

type followRequest struct {
	FollowerUsername string `json:"followerUsername"`
	FollowedUsername string `json:"followedUsername"`
}

// Dispatch routes a decoded request to the matching follow-graph
// operation.
func (h *FollowHandler) Dispatch(env *wire.Envelope) (map[string]interface{}, error) {
	switch env.Action {
	case wire.ActionFollowUser:
		return h.follow(env)
	case wire.ActionUnfollowUser:
		return h.unfollow(env)
	case wire.ActionGetFollowers:
		return h.getFollowers(env)
	case wire.ActionGetFollowing:
		return h.getFollowing(env)
	default:
		return nil, errors.Wrapf(ErrUnknownAction, "%s", env.Action)
	}
}

func (h *FollowHandler) follow(env *wire.Envelope) (map[string]interface{}, error) {
	var req followRequest
	if err := env.Bind("followerUsername", &req.FollowerUsername); err != nil {
		return nil, err
	}
	if err := env.Bind("followedUsername", &req.FollowedUsername); err != nil {
		return nil, err
	}

	if err := h.users.Follow(req.FollowerUsername, req.FollowedUsername); err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type: wire.EventFollowAdded,
		Payload: map[string]interface{}{
			"followerUsername": req.FollowerUsername,
			"followedUsername": req.FollowedUsername,
		},
	})
	return nil, nil
}

func (h *FollowHandler) unfollow(env *wire.Envelope) (map[string]interface{}, error) {
	var req followRequest
	if err := env.Bind("followerUsername", &req.FollowerUsername); err != nil {
		return nil, err
	}
	if err := env.Bind("followedUsername", &req.FollowedUsername); err != nil {
		return nil, err
	}

	if err := h.users.Unfollow(req.FollowerUsername, req.FollowedUsername); err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type: wire.EventFollowRemoved,
		Payload: map[string]interface{}{
			"followerUsername": req.FollowerUsername,
			"followedUsername": req.FollowedUsername,
		},
	})
	return nil, nil
}

func (h *FollowHandler) getFollowers(env *wire.Envelope) (map[string]interface{}, error) {
	var username string
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}
	followers, ok := h.users.Followers(username)
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return map[string]interface{}{"followers": followers, "count": len(followers)}, nil
}

func (h *FollowHandler) getFollowing(env *wire.Envelope) (map[string]interface{}, error) {
	var username string
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}
	following, ok := h.users.Following(username)
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	return map[string]interface{}{"following": following, "count": len(following)}, nil
}
