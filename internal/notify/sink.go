package notify

import (
	"github.com/obaturn/chat-pay-BackEnd/internal/logger"
	"go.uber.org/zap"
)

// Sink receives transaction lifecycle events for downstream real-time
// delivery. The engine publishes after every terminal transition and after
// each balance mutation; what happens to the event after that is the
// transport's business.
type Sink interface {
	Publish(userID uint64, event string, payload map[string]any)
}

// LogSink is the default Sink when no real-time transport is attached.
type LogSink struct{}

func (LogSink) Publish(userID uint64, event string, payload map[string]any) {
	logger.Log.Info("notification",
		zap.Uint64("user_id", userID),
		zap.String("event", event),
		zap.Any("payload", payload),
	)
}
