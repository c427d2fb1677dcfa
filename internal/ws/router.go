package ws

import (
	"context"
	"encoding/json"
	"sync"

	"warecollabgo/internal/collab"
)

// internal (untyped) handler signature. Handlers return the reply
// envelope sent back on the requesting connection.
type rawHandler func(ctx context.Context, c *Client, body json.RawMessage) (*collab.Envelope, error)

// Router keeps a map[event]handler, à-la gin.Engine.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds an event to a strongly-typed handler.
func Register[Req any](
	r *Router,
	event string,
	h func(ctx context.Context, c *Client, req Req) (*collab.Envelope, error),
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = func(ctx context.Context, c *Client, body json.RawMessage) (*collab.Envelope, error) {
		var req Req
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, &collab.CodedError{Code: collab.CodeBadRequest, Message: "malformed payload"}
			}
		}
		return h(ctx, c, req)
	}
}

// dispatch is called by the server's reader loop.
func (r *Router) dispatch(ctx context.Context, c *Client, env collab.Envelope) (*collab.Envelope, error) {
	r.mu.RLock()
	h, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		return nil, &collab.CodedError{Code: collab.CodeUnknownEvent, Message: "unknown event " + env.Event}
	}
	return h(ctx, c, env.Body)
}
