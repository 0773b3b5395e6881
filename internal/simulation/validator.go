package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ReviewRequest — заявка на внешнее рецензирование решения.
// Отправляется fire-and-forget для решений с поднятым advisory-флагом.
// ReviewID связывает заявку с асинхронным ответом рецензента.
type ReviewRequest struct {
	ReviewID     string  `json:"review_id"`
	DecisionID   string  `json:"decision_id"`
	DecisionType string  `json:"decision_type"`
	Actor        string  `json:"actor"`
	RiskScore    float64 `json:"risk_score"`
	Narrative    string  `json:"narrative"`
}

// Validator — инжектируемая способность внешней валидации.
// Тесты и прод разделяют одну форму вызова: симулированный вариант
// для разработки, HTTP-вариант для боевого LLM-рецензента.
type Validator interface {
	SubmitReview(ctx context.Context, req ReviewRequest) error
}

// StaticValidator — вариант для разработки и тестов: всегда принимает заявку.
type StaticValidator struct{}

func (StaticValidator) SubmitReview(ctx context.Context, req ReviewRequest) error {
	return nil
}

// HTTPValidator отправляет заявку внешнему сервису рецензирования.
// Ответ рецензента асинхронный и вне зоны ответственности этого ядра.
type HTTPValidator struct {
	url    string
	client *http.Client
}

func NewHTTPValidator(url string, timeout time.Duration) *HTTPValidator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPValidator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (v *HTTPValidator) SubmitReview(ctx context.Context, req ReviewRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("validator: marshal review request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("validator: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("validator: submit review: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		// Отдаем ThrottleError, чтобы ReliabilityWrapper учел Retry-After
		retryAfter := 5 * time.Second
		if raw := resp.Header.Get("Retry-After"); raw != "" {
			if d, parseErr := time.ParseDuration(raw + "s"); parseErr == nil {
				retryAfter = d
			}
		}
		return &ThrottleError{RetryAfter: retryAfter, Cause: fmt.Errorf("validator responded 429")}
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("validator: unexpected status %d", resp.StatusCode)
	}
	return nil
}
