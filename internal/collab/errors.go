package collab

import "errors"

// Wire-level error codes, surfaced in "error" envelopes.
const (
	CodeAuthError    = "AUTH_ERROR"
	CodeRoomNotFound = "ROOM_NOT_FOUND"
	CodeLockNotOwned = "LOCK_NOT_OWNED"
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnknownEvent = "UNKNOWN_EVENT"
)

var (
	ErrInvalidRoomType = errors.New("room type must be \"order\" or \"shipment\"")
	ErrInvalidLockType = errors.New("lock type must be \"view\" or \"edit\"")
	ErrRoomNotFound    = errors.New("room not found; join the room before locking")
	ErrLockNotOwned    = errors.New("you do not hold the lock on this room")
)

// CodedError pairs a stable machine code with a display-ready message.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Message }

// CodeOf maps domain errors onto wire codes.
func CodeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, ErrLockNotOwned):
		return CodeLockNotOwned
	case errors.Is(err, ErrInvalidRoomType), errors.Is(err, ErrInvalidLockType):
		return CodeBadRequest
	}
	return CodeBadRequest
}
