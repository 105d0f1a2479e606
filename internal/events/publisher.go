// Пакет events — публикация событий жизненного цикла в Kafka.
//
// Событие публикуется после фиксации перехода статуса. Публикация
// не влияет на результат запроса: ошибка только логируется.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	skafka "github.com/segmentio/kafka-go"
)

// LifecycleEvent — событие перехода статуса сущности.
type LifecycleEvent struct {
	// Entity — тип сущности (club, event, membership, manager_application)
	Entity string `json:"entity"`
	// ID — идентификатор сущности
	ID string `json:"id"`
	// ClubID — клуб, к которому относится сущность (если есть)
	ClubID string `json:"club_id,omitempty"`
	From   string `json:"from"`
	To     string `json:"to"`
	// Actor — email инициатора
	Actor string `json:"actor"`
	// Propagation — статус распространения (applied, pending), пусто без побочных эффектов
	Propagation string    `json:"propagation,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Key возвращает ключ сообщения: события одной сущности попадают в одну партицию.
func (e LifecycleEvent) Key() string {
	return e.Entity + ":" + e.ID
}

// Publisher — публикация событий жизненного цикла.
type Publisher interface {
	Publish(ctx context.Context, e LifecycleEvent) error
	Close() error
}

// Writer — подмножество методов kafka.Writer, используемое публикатором.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// KafkaPublisher публикует события в топик Kafka.
type KafkaPublisher struct {
	writer  Writer
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafkaPublisher создаёт публикатор для брокеров brokers и топика topic.
func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration, logger *slog.Logger) *KafkaPublisher {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		RequiredAcks:           skafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           timeout,
	}
	return NewKafkaPublisherWithWriter(w, timeout, logger)
}

// NewKafkaPublisherWithWriter создаёт публикатор с заданным Writer (для тестов).
func NewKafkaPublisherWithWriter(w Writer, timeout time.Duration, logger *slog.Logger) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &KafkaPublisher{
		writer:  w,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "events")),
	}
}

// Publish сериализует событие в JSON и записывает его в Kafka.
// Запись ограничена таймаутом публикации.
func (p *KafkaPublisher) Publish(ctx context.Context, e LifecycleEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("сериализация события: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := skafka.Message{
		Key:   []byte(e.Key()),
		Value: b,
		Headers: []skafka.Header{
			{Key: "entity", Value: []byte(e.Entity)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("Ошибка публикации события",
			slog.String("entity", e.Entity),
			slog.String("id", e.ID),
			slog.String("to", e.To),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("публикация события: %w", err)
	}

	p.logger.Debug("Событие опубликовано",
		slog.String("entity", e.Entity),
		slog.String("id", e.ID),
		slog.String("to", e.To),
	)
	return nil
}

// Close закрывает Writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher — публикатор без брокера (CM_KAFKA_BROKERS не задан).
type NoopPublisher struct{}

// Publish ничего не делает.
func (NoopPublisher) Publish(context.Context, LifecycleEvent) error { return nil }

// Close ничего не делает.
func (NoopPublisher) Close() error { return nil }
