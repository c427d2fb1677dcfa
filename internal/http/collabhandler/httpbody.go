package collabhandler

// ActorBody identifies the business-logic caller on whose behalf a
// notification is announced.
type ActorBody struct {
	UserID     string `json:"user_id" binding:"required" example:"user123"`
	UserName   string `json:"user_name" example:"Jane Doe"`
	UserAvatar string `json:"user_avatar"`
}

type BroadcastBody struct {
	ActionType string         `json:"action_type" binding:"required" example:"order_packed"`
	EntityID   string         `json:"entity_id"   example:"ord123"`
	Message    string         `json:"message"     binding:"required" example:"Order #123 packed"`
	Metadata   map[string]any `json:"metadata"`
	Actor      ActorBody      `json:"actor"       binding:"required"`
}

type EntityUpdateBody struct {
	Fields map[string]any `json:"fields"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
