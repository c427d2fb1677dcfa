package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"warecollabgo/internal/auth"
	"warecollabgo/internal/collab"
	"warecollabgo/internal/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second // must be < pongWait
	readLimit  = 4096

	dispatchTimeout = 1900 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // same-origin enforced upstream
}

type WsServer struct {
	hub       *Hub
	coord     *collab.Coordinator
	gateway   *notify.Gateway
	router    *Router
	jwtSecret string
}

func NewWsServer(hub *Hub, coord *collab.Coordinator, gateway *notify.Gateway, jwtSecret string) *WsServer {
	srv := &WsServer{
		hub:       hub,
		coord:     coord,
		gateway:   gateway,
		router:    NewRouter(),
		jwtSecret: jwtSecret,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

// Handle upgrades an authenticated request into a registered connection.
// A connection without a verifiable identity never reaches the hub.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	token := ginCtx.Query("token")
	if token == "" {
		token = ginCtx.GetHeader("Authorization")
	}
	ident, err := auth.ParseIdentity(s.jwtSecret, token)
	if err != nil {
		ginCtx.JSON(http.StatusUnauthorized, gin.H{
			"code":  collab.CodeAuthError,
			"error": "authentication required",
		})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(readLimit)

	client := newClient(uuid.NewString(), ident, rawConn)
	s.hub.Add(client)
	zap.L().Info("ws.connected",
		zap.String("conn", client.ID), zap.String("user", ident.UserID))

	go s.reader(client)
	go s.pinger(client)
}

// ---------------------------------------------------------------------------
//  Event handlers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, eventJoinRoom,
		func(ctx context.Context, c *Client, req RoomRequest) (*collab.Envelope, error) {
			rt, err := collab.ParseRoomType(req.RoomType)
			if err != nil {
				return nil, err
			}
			if req.EntityID == "" {
				return nil, &collab.CodedError{Code: collab.CodeBadRequest, Message: "entity_id is required"}
			}
			s.hub.JoinRoom(c.ID, collab.RoomID(rt, req.EntityID))
			snap, err := s.coord.Join(ctx, c.Session(), rt, req.EntityID)
			if err != nil {
				return nil, err
			}
			env := collab.NewEnvelope(collab.EventRoomState, snap)
			return &env, nil
		})

	Register(s.router, eventLeaveRoom,
		func(ctx context.Context, c *Client, req RoomRequest) (*collab.Envelope, error) {
			rt, err := collab.ParseRoomType(req.RoomType)
			if err != nil {
				return nil, err
			}
			if err := s.coord.Leave(ctx, c.Session(), rt, req.EntityID); err != nil {
				return nil, err
			}
			s.hub.LeaveRoom(c.ID, collab.RoomID(rt, req.EntityID))
			env := collab.NewEnvelope(eventLeaveRoom+"-ack", AckBody{})
			return &env, nil
		})

	Register(s.router, eventRequestLock,
		func(ctx context.Context, c *Client, req LockRequest) (*collab.Envelope, error) {
			rt, err := collab.ParseRoomType(req.RoomType)
			if err != nil {
				return nil, err
			}
			lt, err := collab.ParseLockType(req.LockType)
			if err != nil {
				return nil, err
			}
			res, err := s.coord.RequestLock(ctx, c.Session(), rt, req.EntityID, lt)
			if err != nil {
				return nil, err
			}
			if !res.Acquired {
				env := collab.NewEnvelope(collab.EventLockDenied, res.Denied)
				return &env, nil
			}
			env := collab.NewEnvelope(collab.EventLockAcquired, collab.LockEventBody{
				RoomID: collab.RoomID(rt, req.EntityID),
				Lock:   res.Lock,
			})
			return &env, nil
		})

	Register(s.router, eventReleaseLock,
		func(ctx context.Context, c *Client, req RoomRequest) (*collab.Envelope, error) {
			rt, err := collab.ParseRoomType(req.RoomType)
			if err != nil {
				return nil, err
			}
			if err := s.coord.ReleaseLock(ctx, c.Session(), rt, req.EntityID); err != nil {
				return nil, err
			}
			env := collab.NewEnvelope(eventReleaseLock+"-ack", AckBody{})
			return &env, nil
		})

	Register(s.router, eventUpdateProgress,
		func(ctx context.Context, c *Client, req ProgressRequest) (*collab.Envelope, error) {
			rt, err := collab.ParseRoomType(req.RoomType)
			if err != nil {
				return nil, err
			}
			merged, err := s.coord.UpdateProgress(ctx, c.Session(), rt, req.EntityID, req.Progress)
			if err != nil {
				return nil, err
			}
			env := collab.NewEnvelope(collab.EventProgressUpdated, collab.ProgressEventBody{
				RoomID:   collab.RoomID(rt, req.EntityID),
				Progress: merged,
			})
			return &env, nil
		})

	Register(s.router, eventBroadcastAction,
		func(ctx context.Context, c *Client, req BroadcastActionRequest) (*collab.Envelope, error) {
			if req.ActionType == "" {
				return nil, &collab.CodedError{Code: collab.CodeBadRequest, Message: "action_type is required"}
			}
			_, err := s.gateway.PublishAction(ctx, c.Identity, notify.Action{
				ActionType: req.ActionType,
				EntityID:   req.EntityID,
				Message:    req.Message,
				Metadata:   req.Metadata,
			})
			if err != nil {
				return nil, err
			}
			env := collab.NewEnvelope(eventBroadcastAction+"-ack", AckBody{})
			return &env, nil
		})

	Register(s.router, eventPing,
		func(ctx context.Context, c *Client, _ AckBody) (*collab.Envelope, error) {
			s.hub.Touch(c.ID)
			env := collab.NewEnvelope(collab.EventPong, AckBody{})
			return &env, nil
		})
}

// ---------------------------------------------------------------------------
//  Connection loops
// ---------------------------------------------------------------------------

func (s *WsServer) reader(c *Client) {
	defer func() {
		memberships := s.hub.Remove(c.ID)
		s.coord.Disconnected(c.Session(), memberships)
		_ = c.raw.Close()
		zap.L().Info("ws.disconnected",
			zap.String("conn", c.ID), zap.Int("rooms", len(memberships)))
	}()

	_ = c.raw.SetReadDeadline(time.Now().Add(pongWait))
	c.raw.SetPongHandler(func(string) error {
		c.touch()
		return c.raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.raw.ReadMessage()
		if err != nil {
			return // client closed or errored
		}
		_ = c.raw.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()

		var env collab.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.writeError(c, collab.CodeBadRequest, "malformed frame")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		reply, err := s.router.dispatch(ctx, c, env)
		cancel()

		if err != nil {
			s.writeError(c, collab.CodeOf(err), err.Error())
			continue
		}
		if reply != nil {
			_ = c.conn.writeJSON(reply)
		}
	}
}

func (s *WsServer) writeError(c *Client, code, msg string) {
	_ = c.conn.writeJSON(collab.NewEnvelope(collab.EventError, collab.ErrorBody{
		Code:  code,
		Error: msg,
	}))
}

func (s *WsServer) pinger(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := c.conn.ping(); err != nil {
			_ = c.raw.Close()
			return
		}
	}
}
