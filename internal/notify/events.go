package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/UnendingLoop/ImagePipeline/internal/mwlogger"
	"github.com/wb-go/wbf/retry"
)

// EventPublisher - контракт для отправки событий в очередь (wbf kafka producer)
type EventPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// NoopPublisher - ЗАГЛУШКА, используется когда брокер не сконфигурирован
type NoopPublisher struct{}

func (NoopPublisher) SendWithRetry(ctx context.Context, strategy retry.Strategy, k []byte, v []byte) error {
	return nil
}

// Стратегия ретрая короткая: публикация идет из фоновой обработки и не должна ее надолго задерживать
var publishStrategy = retry.Strategy{
	Attempts: 3,
	Delay:    100 * time.Millisecond,
	Backoff:  2,
}

// EventSink mirrors every persisted message to the lifecycle-event topic, keyed by project.
// Failures are logged only: the message is already committed and delivered.
type EventSink struct {
	pub EventPublisher
}

func NewEventSink(pub EventPublisher) *EventSink {
	if pub == nil {
		pub = NoopPublisher{}
	}
	return &EventSink{pub: pub}
}

func (s *EventSink) Publish(ctx context.Context, msg *model.Message) {
	if s == nil {
		return
	}
	logger := mwlogger.LoggerFromContext(ctx)

	value, err := json.Marshal(msg)
	if err != nil {
		logger.Error().Err(err).Int64("message_id", msg.ID).Msg("Failed to marshal lifecycle event")
		return
	}

	key := []byte(strconv.FormatInt(msg.ProjectID, 10))
	if err := s.pub.SendWithRetry(ctx, publishStrategy, key, value); err != nil {
		logger.Error().Err(err).Int64("message_id", msg.ID).Msg("Failed to publish lifecycle event")
	}
}
