package collabhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"warecollabgo/internal/collab"
	"warecollabgo/internal/notify"
)

// Handler is the internal REST surface business-logic modules call to
// announce state changes through the broadcast gateway.
type Handler struct {
	gw *notify.Gateway
}

func New(gw *notify.Gateway) *Handler { return &Handler{gw: gw} }

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/internal/broadcast", h.broadcast)
	r.POST("/internal/rooms/:room_type/:entity_id/broadcast", h.entityUpdate)
}

func (h *Handler) broadcast(ginCtx *gin.Context) {
	var body BroadcastBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	actor := collab.Identity{
		UserID:     body.Actor.UserID,
		UserName:   body.Actor.UserName,
		UserAvatar: body.Actor.UserAvatar,
	}
	if actor.UserName == "" {
		actor.UserName = actor.UserID
	}

	n, err := h.gw.PublishAction(ginCtx.Request.Context(), actor, notify.Action{
		ActionType: body.ActionType,
		EntityID:   body.EntityID,
		Message:    body.Message,
		Metadata:   body.Metadata,
	})
	if err != nil {
		ginCtx.JSON(http.StatusBadGateway, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusAccepted, n)
}

func (h *Handler) entityUpdate(ginCtx *gin.Context) {
	rt, err := collab.ParseRoomType(ginCtx.Param("room_type"))
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	entityID := ginCtx.Param("entity_id")

	var body EntityUpdateBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	u, err := h.gw.PublishEntityUpdate(ginCtx.Request.Context(), rt, entityID, body.Fields)
	if err != nil {
		ginCtx.JSON(http.StatusBadGateway, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusAccepted, u)
}
