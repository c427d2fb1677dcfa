package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warecollabgo/internal/collab"
)

func TestRouterDispatch(t *testing.T) {
	r := NewRouter()
	Register(r, "echo_room", func(ctx context.Context, c *Client, req RoomRequest) (*collab.Envelope, error) {
		env := collab.NewEnvelope("echoed", req)
		return &env, nil
	})

	c := testClient("c1", "alice", &fakeConn{})
	reply, err := r.dispatch(context.Background(), c, collab.Envelope{
		Event: "echo_room",
		Body:  json.RawMessage(`{"room_type":"order","entity_id":"123"}`),
	})
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "echoed", reply.Event)
	assert.JSONEq(t, `{"room_type":"order","entity_id":"123"}`, string(reply.Body))
}

func TestRouterUnknownEvent(t *testing.T) {
	r := NewRouter()
	_, err := r.dispatch(context.Background(), testClient("c1", "alice", &fakeConn{}), collab.Envelope{Event: "nope"})
	require.Error(t, err)

	var coded *collab.CodedError
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, collab.CodeUnknownEvent, coded.Code)
}

func TestRouterMalformedBody(t *testing.T) {
	r := NewRouter()
	Register(r, "echo_room", func(ctx context.Context, c *Client, req RoomRequest) (*collab.Envelope, error) {
		return nil, nil
	})

	_, err := r.dispatch(context.Background(), testClient("c1", "alice", &fakeConn{}), collab.Envelope{
		Event: "echo_room",
		Body:  json.RawMessage(`{"room_type":42}`),
	})
	require.Error(t, err)
	assert.Equal(t, collab.CodeBadRequest, collab.CodeOf(err))
}

func TestRegisterEmptyEventPanics(t *testing.T) {
	r := NewRouter()
	assert.Panics(t, func() {
		Register(r, "", func(ctx context.Context, c *Client, req AckBody) (*collab.Envelope, error) {
			return nil, nil
		})
	})
}
