package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ExecutionStatus — жизненный цикл записи: создана pending, затем переходит
// ровно в один из терминальных статусов. reversed достижим только из
// pending/executed и только для обратимых решений.
type ExecutionStatus string

const (
	StatusPending  ExecutionStatus = "pending"
	StatusExecuted ExecutionStatus = "executed"
	StatusFailed   ExecutionStatus = "failed"
	StatusReversed ExecutionStatus = "reversed"
)

// Record — долговременная запись решения. Контентные поля неизменяемы после
// создания; мутируются только ExecutionStatus и append-only Notes.
type Record struct {
	DecisionID   string    `json:"decision_id"`
	Actor        string    `json:"actor"`
	DecisionType string    `json:"decision_type"`
	Timestamp    time.Time `json:"timestamp"`

	Inputs                 []string               `json:"inputs,omitempty"`
	Context                map[string]interface{} `json:"context,omitempty"`
	AlternativesConsidered []string               `json:"alternatives_considered,omitempty"`
	Chosen                 string                 `json:"chosen"`
	Reasoning              []string               `json:"reasoning,omitempty"`

	Confidence  float64  `json:"confidence"`
	RiskScore   float64  `json:"risk_score"`
	ValidatedBy string   `json:"validated_by,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Reversible  bool     `json:"reversible"`

	ExecutionStatus ExecutionStatus `json:"execution_status"`
	Notes           []string        `json:"notes,omitempty"`

	// Hash — отпечаток записи, НЕ цепочка: считается один раз при создании
	// только из идентичности самой записи и никогда не пересчитывается.
	// Ловит подмену отдельной записи, но не удаление/перестановку в журнале.
	Hash string `json:"hash"`
}

// fingerprint — 16 hex-символов от sha256 идентичности записи.
func fingerprint(decisionID, actor, decisionType string, ts time.Time) string {
	payload := fmt.Sprintf("%s|%s|%s|%s", decisionID, actor, decisionType, ts.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// VerifyFingerprint проверяет, что отпечаток соответствует идентичности записи.
func (r *Record) VerifyFingerprint() bool {
	return r.Hash == fingerprint(r.DecisionID, r.Actor, r.DecisionType, r.Timestamp)
}
