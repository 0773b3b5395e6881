package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ThrottleError сигнализирует, что внешний сервис попросил притормозить.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

// BreakerSettings — параметры предохранителя, приходят из конфига.
// Нулевые значения заменяются дефолтами.
type BreakerSettings struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// ReliableValidator оборачивает Validator в контур надежности:
// Rate Limiter -> Circuit Breaker -> Retries с умным бэкоффом.
type ReliableValidator struct {
	next    Validator
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliableValidator(next Validator, bs BreakerSettings) *ReliableValidator {
	if bs.MaxRequests == 0 {
		bs.MaxRequests = 3
	}
	if bs.Interval <= 0 {
		bs.Interval = 5 * time.Second
	}
	if bs.Timeout <= 0 {
		bs.Timeout = 30 * time.Second
	}

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "advisory-validator",
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	// Рецензии не горят: лимит щадящий
	limiter := rate.NewLimiter(rate.Limit(10), 5)

	return &ReliableValidator{
		next:    next,
		cb:      cb,
		limiter: limiter,
	}
}

func (w *ReliableValidator) SubmitReview(ctx context.Context, req ReviewRequest) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// Если сервис вернул ThrottleError (считал Retry-After заголовок)
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// В остальных случаях (сетевой лаг, 500-ка) — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return w.next.SubmitReview(tCtx, req)
		})

		return nil, retryErr
	})

	return err
}
