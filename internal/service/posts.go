package service

import (
	"github.com/pkg/errors"

	"github.com/ppriyankuu/social-mesh/internal/repo"
	"github.com/ppriyankuu/social-mesh/internal/replication"
	"github.com/ppriyankuu/social-mesh/internal/wire"
)

const defaultFeedLimit = 20

// PostsHandler serves CREATE_POST, UPDATE_POST, DELETE_POST,
// GET_USER_POSTS, and GET_FEED (spec section 6.2).
type PostsHandler struct {
	posts *repo.PostRepo
	users *repo.UserRepo
	queue *replication.Queue
}

// NewPostsHandler builds a PostsHandler.
func NewPostsHandler(posts *repo.PostRepo, users *repo.UserRepo, queue *replication.Queue) *PostsHandler {
	return &PostsHandler{posts: posts, users: users, queue: queue}
}

// Handles reports whether action belongs to this handler's set.
func (h *PostsHandler) Handles(action wire.Action) bool {
	switch action {
	case wire.ActionCreatePost, wire.ActionUpdatePost, wire.ActionDeletePost,
		wire.ActionGetUserPosts, wire.ActionGetFeed:
		return true
	default:
		return false
	}
}

// Dispatch routes a decoded request to the matching post operation.
func (h *PostsHandler) Dispatch(env *wire.Envelope) (map[string]interface{}, error) {
	switch env.Action {
	case wire.ActionCreatePost:
		return h.create(env)
	case wire.ActionUpdatePost:
		return h.update(env)
	case wire.ActionDeletePost:
		return h.delete(env)
	case wire.ActionGetUserPosts:
		return h.getUserPosts(env)
	case wire.ActionGetFeed:
		return h.getFeed(env)
	default:
		return nil, errors.Wrapf(ErrUnknownAction, "%s", env.Action)
	}
}

func (h *PostsHandler) create(env *wire.Envelope) (map[string]interface{}, error) {
	var username, content string
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}
	if err := env.Bind("content", &content); err != nil {
		return nil, err
	}

	p, err := h.posts.Add(username, content)
	if err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type:            wire.EventPostCreated,
		EntityID:        p.PostID,
		OriginTimestamp: p.CreatedAt,
		Payload: map[string]interface{}{
			"username": p.Username,
			"content":  p.Content,
		},
	})

	return map[string]interface{}{
		"postId":    p.PostID,
		"username":  p.Username,
		"createdAt": p.CreatedAt,
	}, nil
}

func (h *PostsHandler) update(env *wire.Envelope) (map[string]interface{}, error) {
	var postID, username, content string
	if err := env.Bind("postId", &postID); err != nil {
		return nil, err
	}
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}
	if err := env.Bind("content", &content); err != nil {
		return nil, err
	}

	p, err := h.posts.Update(postID, username, content)
	if err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type:            wire.EventPostUpdated,
		EntityID:        p.PostID,
		OriginTimestamp: p.UpdatedAt,
		Payload:         map[string]interface{}{"content": p.Content},
	})

	return map[string]interface{}{"postId": p.PostID, "updatedAt": p.UpdatedAt}, nil
}

func (h *PostsHandler) delete(env *wire.Envelope) (map[string]interface{}, error) {
	var postID, username string
	if err := env.Bind("postId", &postID); err != nil {
		return nil, err
	}
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}

	if err := h.posts.Delete(postID, username); err != nil {
		return nil, err
	}

	h.queue.Enqueue(replication.Event{
		Type:     wire.EventPostDeleted,
		EntityID: postID,
	})
	return nil, nil
}

func (h *PostsHandler) getUserPosts(env *wire.Envelope) (map[string]interface{}, error) {
	var username string
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}
	posts := h.posts.GetByUsername(username)
	return map[string]interface{}{"posts": posts, "count": len(posts)}, nil
}

func (h *PostsHandler) getFeed(env *wire.Envelope) (map[string]interface{}, error) {
	var username string
	if err := env.Bind("username", &username); err != nil {
		return nil, err
	}
	limit := defaultFeedLimit
	if env.Has("limit") {
		var l int
		if err := env.Bind("limit", &l); err == nil && l > 0 {
			limit = l
		}
	}

	following, ok := h.users.Following(username)
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	sources := append(following, username)

	posts := h.posts.GetRecentPostsByUsers(sources, limit)
	return map[string]interface{}{"posts": posts, "count": len(posts)}, nil
}
