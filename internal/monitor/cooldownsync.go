package monitor

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
)

// CooldownSync транслирует cooldown-сигналы между инстансами governor
// через Redis Pub/Sub. Один инстанс уходит в DANGER — тормозят все.
type CooldownSync struct {
	monitor *Monitor
	rdb     *redis.Client
	logger  *zap.Logger
}

func NewCooldownSync(m *Monitor, rdb *redis.Client, logger *zap.Logger) *CooldownSync {
	return &CooldownSync{
		monitor: m,
		rdb:     rdb,
		logger:  logger.Named("cooldown-sync"),
	}
}

// Init подтягивает действующий cooldown при старте сервиса,
// чтобы свежий инстанс не начал работу посреди чужой паузы.
func (s *CooldownSync) Init(ctx context.Context) error {
	raw, err := s.rdb.Get(ctx, infra.RedisKeyCooldownUntil).Result()
	if err != nil {
		if err == redis.Nil {
			return nil // Паузы нет — штатная ситуация
		}
		return err
	}

	until, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.logger.Warn("malformed cooldown stamp in Redis, ignoring", zap.String("raw", raw))
		return nil
	}
	s.monitor.ApplyExternalCooldown(until)
	return nil
}

// Publish объявляет паузу всем инстансам: пишем штамп и шлем сигнал.
// TTL ключа равен длительности паузы — Redis сам подчистит устаревшее.
func (s *CooldownSync) Publish(ctx context.Context, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	stamp := until.Format(time.RFC3339)
	if err := s.rdb.Set(ctx, infra.RedisKeyCooldownUntil, stamp, ttl).Err(); err != nil {
		return err
	}
	return s.rdb.Publish(ctx, infra.RedisChanCooldown, stamp).Err()
}

// StartListener — "живучая" подписка: при обрыве соединения переподписываемся
// и синхронизируем состояние через Init.
func (s *CooldownSync) StartListener(ctx context.Context) {
	for {
		pubsub := s.rdb.Subscribe(ctx, infra.RedisChanCooldown)

		// Проверка успешности подписки
		if _, err := pubsub.Receive(ctx); err != nil {
			s.logger.Error("failed to subscribe", zap.String("chan", infra.RedisChanCooldown), zap.Error(err))
			pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		// Синхронизация при каждом успешном коннекте
		if err := s.Init(ctx); err != nil {
			s.logger.Error("cooldown sync failed on reconnect", zap.Error(err))
		}

		ch := pubsub.Channel()

	loop:
		for {
			select {
			case <-ctx.Done():
				pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // Канал закрыт, идем на переподключение
				}

				until, err := time.Parse(time.RFC3339, msg.Payload)
				if err != nil {
					s.logger.Error("invalid cooldown signal format", zap.String("payload", msg.Payload))
					continue
				}

				s.logger.Info("external cooldown received", zap.Time("until", until))
				s.monitor.ApplyExternalCooldown(until)
			}
		}

		pubsub.Close()
		time.Sleep(1 * time.Second)
	}
}
