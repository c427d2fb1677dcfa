package notify

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"warecollabgo/internal/collab"
)

// Relay fans messages coming from any publisher (this process included)
// out to the in-process hub. Run must be started once at service boot.
func Relay(ctx context.Context, rdb *redis.Client, sink collab.Broadcaster) {
	pubsub := rdb.PSubscribe(ctx, "collab:*")
	defer pubsub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			dispatch(sink, m.Channel, m.Payload)
		}
	}
}

func dispatch(sink collab.Broadcaster, channel, payload string) {
	switch {
	case channel == globalChannel:
		sink.All(collab.Envelope{
			Event: collab.EventGlobalNotification,
			Body:  json.RawMessage(payload),
		})
	case strings.HasPrefix(channel, roomChannelPrefix):
		roomID := strings.TrimPrefix(channel, roomChannelPrefix)
		sink.Room(roomID, collab.Envelope{
			Event: collab.EventEntityUpdated,
			Body:  json.RawMessage(payload),
		}, "")
	default:
		zap.L().Debug("notify.unknown_channel", zap.String("channel", channel))
	}
}
