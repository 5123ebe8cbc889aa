// Package relay публикует события журнала аудита платежей в Kafka.
//
// Журнал событий append-only и никогда не изменяется, поэтому вместо
// пометки записей как обработанных worker хранит чекпоинт — seq
// последнего опубликованного события. Гарантия доставки at-least-once:
// при сбое после публикации, но до сохранения чекпоинта, события
// будут опубликованы повторно.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/payment-service/internal/domain"
	"example.com/payment-service/internal/repository"
	"example.com/payment-service/pkg/kafka"
	"example.com/payment-service/pkg/logger"
)

// KafkaProducer — интерфейс для отправки сообщений в Kafka.
// Позволяет замокать kafka.Producer в unit-тестах.
type KafkaProducer interface {
	SendMessage(ctx context.Context, msg *kafka.Message) error
}

// Checkpoint хранит seq последнего опубликованного события.
type Checkpoint interface {
	// Load возвращает сохранённый чекпоинт.
	// Отсутствие чекпоинта — это seq 0, а не ошибка.
	Load(ctx context.Context) (uint64, error)

	// Store сохраняет чекпоинт.
	Store(ctx context.Context, seq uint64) error
}

// =============================================================================
// Redis чекпоинт
// =============================================================================

// checkpointKey — ключ чекпоинта relay в Redis.
const checkpointKey = "payment:events:relay:checkpoint"

// RedisCheckpoint хранит чекпоинт в Redis.
type RedisCheckpoint struct {
	client *redis.Client
}

// NewRedisCheckpoint создаёт чекпоинт на базе Redis.
func NewRedisCheckpoint(client *redis.Client) *RedisCheckpoint {
	return &RedisCheckpoint{client: client}
}

// Load возвращает сохранённый чекпоинт, 0 если его нет.
func (c *RedisCheckpoint) Load(ctx context.Context) (uint64, error) {
	val, err := c.client.Get(ctx, checkpointKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка чтения чекпоинта: %w", err)
	}

	seq, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректный чекпоинт %q: %w", val, err)
	}
	return seq, nil
}

// Store сохраняет чекпоинт.
func (c *RedisCheckpoint) Store(ctx context.Context, seq uint64) error {
	if err := c.client.Set(ctx, checkpointKey, strconv.FormatUint(seq, 10), 0).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения чекпоинта: %w", err)
	}
	return nil
}

// =============================================================================
// Worker
// =============================================================================

// WorkerConfig — настройки relay worker.
type WorkerConfig struct {
	// PollInterval — интервал между опросами журнала событий.
	PollInterval time.Duration

	// BatchSize — количество событий за один запрос.
	BatchSize int
}

// DefaultWorkerConfig возвращает конфигурацию по умолчанию.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    100,
	}
}

// Worker читает новые события журнала и публикует их в Kafka.
type Worker struct {
	events     repository.EventRepository
	producer   KafkaProducer
	checkpoint Checkpoint
	cfg        WorkerConfig
}

// NewWorker создаёт relay worker.
func NewWorker(events repository.EventRepository, producer KafkaProducer, checkpoint Checkpoint, cfg WorkerConfig) *Worker {
	return &Worker{
		events:     events,
		producer:   producer,
		checkpoint: checkpoint,
		cfg:        cfg,
	}
}

// Run запускает Worker. Блокирует выполнение до отмены контекста.
func (w *Worker) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info().
		Dur("poll_interval", w.cfg.PollInterval).
		Int("batch_size", w.cfg.BatchSize).
		Msg("Запуск Event Relay Worker")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Остановка Event Relay Worker")
			return
		case <-ticker.C:
			if err := w.ProcessBatch(ctx); err != nil {
				log.Error().Err(err).Msg("Ошибка публикации событий")
			}
		}
	}
}

// ProcessBatch публикует одну пачку событий после чекпоинта.
// Чекпоинт продвигается после каждого успешно опубликованного события:
// при сбое в середине пачки опубликованное не отправляется повторно.
func (w *Worker) ProcessBatch(ctx context.Context) error {
	log := logger.FromContext(ctx)

	seq, err := w.checkpoint.Load(ctx)
	if err != nil {
		return err
	}

	events, err := w.events.ListAfterSeq(ctx, seq, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("ошибка чтения журнала событий: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	log.Debug().Int("count", len(events)).Uint64("after_seq", seq).Msg("Публикация событий")

	for _, event := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := w.publish(ctx, event); err != nil {
			// Прерываем пачку: порядок событий в топике важнее прогресса
			return err
		}

		if err := w.checkpoint.Store(ctx, event.Seq); err != nil {
			return err
		}
	}

	return nil
}

// eventPayload — формат события в топике payment.events.
type eventPayload struct {
	ID            string         `json:"id"`
	PaymentID     string         `json:"payment_id"`
	EventType     string         `json:"event_type"`
	PaymentStatus string         `json:"payment_status"`
	Data          map[string]any `json:"data"`
	CreatedAt     time.Time      `json:"created_at"`
	Seq           uint64         `json:"seq"`
}

// publish отправляет одно событие в Kafka.
func (w *Worker) publish(ctx context.Context, event *domain.PaymentEvent) error {
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(eventPayload{
		ID:            event.ID,
		PaymentID:     event.PaymentID,
		EventType:     event.EventType,
		PaymentStatus: string(event.Status),
		Data:          event.Data,
		CreatedAt:     event.CreatedAt,
		Seq:           event.Seq,
	})
	if err != nil {
		return fmt.Errorf("ошибка сериализации события %s: %w", event.ID, err)
	}

	msg := &kafka.Message{
		Topic: kafka.TopicPaymentEvents,
		// Ключ — payment_id: события одного платежа в одной партиции
		Key:   []byte(event.PaymentID),
		Value: payload,
		Headers: map[string]string{
			kafka.HeaderEventType: event.EventType,
		},
		Time: event.CreatedAt,
	}

	if err := w.producer.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("ошибка публикации события %s: %w", event.ID, err)
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("payment_id", event.PaymentID).
		Str("event_type", event.EventType).
		Uint64("seq", event.Seq).
		Msg("Событие опубликовано в Kafka")

	return nil
}
