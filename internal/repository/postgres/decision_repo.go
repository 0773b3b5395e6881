package postgres

/*
Файл decision_repo.go — Postgres-зеркало журнала решений.
Файловый JSONL-журнал остается источником правды для аудита; база дает
индексированные полноисторийные выборки по актору/типу/времени, которые
кэш журнала по построению дать не может.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/ledger"
)

type DecisionRepo struct {
	db *sql.DB
}

func NewDecisionRepo(connString string) *DecisionRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &DecisionRepo{db: db}
}

// Ping проверяет доступность базы при старте
func (r *DecisionRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WriteBatch — пакетный upsert записей. Конфликт по decision_id означает
// смену статуса исполнения: обновляем только мутируемые поля.
func (r *DecisionRepo) WriteBatch(ctx context.Context, records []ledger.Record) error {
	if len(records) == 0 {
		return nil
	}

	// Количество колонок в таблице decision_records
	numFields := 12
	placeholderStr := ""
	vals := make([]interface{}, 0, len(records)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, rec := range records {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12)

		contextJSON, _ := json.Marshal(rec.Context)
		reasoningJSON, _ := json.Marshal(rec.Reasoning)
		notesJSON, _ := json.Marshal(rec.Notes)

		vals = append(vals,
			rec.DecisionID, rec.Actor, rec.DecisionType, rec.Timestamp,
			rec.Chosen, contextJSON, reasoningJSON, rec.Confidence,
			rec.RiskScore, string(rec.ExecutionStatus), notesJSON, rec.Hash,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(`
		INSERT INTO decision_records
			(decision_id, actor, decision_type, timestamp, chosen, context,
			 reasoning, confidence, risk_score, execution_status, notes, hash)
		VALUES %s
		ON CONFLICT (decision_id) DO UPDATE SET
			execution_status = EXCLUDED.execution_status,
			notes = EXCLUDED.notes`,
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}

// FetchDecisions — полноисторийная выборка с необязательными фильтрами.
// Пустой actor/decisionType и нулевые from/to означают "без фильтра".
func (r *DecisionRepo) FetchDecisions(ctx context.Context, actor, decisionType string, from, to time.Time, limit int) ([]ledger.Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var (
		conds []string
		vals  []interface{}
	)
	add := func(cond string, val interface{}) {
		vals = append(vals, val)
		conds = append(conds, fmt.Sprintf(cond, len(vals)))
	}

	if actor != "" {
		add("actor = $%d", actor)
	}
	if decisionType != "" {
		add("decision_type = $%d", decisionType)
	}
	if !from.IsZero() {
		add("timestamp >= $%d", from)
	}
	if !to.IsZero() {
		add("timestamp <= $%d", to)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	vals = append(vals, limit)

	query := fmt.Sprintf(`
		SELECT decision_id, actor, decision_type, timestamp, chosen, context,
		       reasoning, confidence, risk_score, execution_status, notes, hash
		FROM decision_records
		%s
		ORDER BY timestamp DESC
		LIMIT $%d`, where, len(vals))

	rows, err := r.db.QueryContext(ctx, query, vals...)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch decisions: %w", err)
	}
	defer rows.Close()

	var results []ledger.Record
	for rows.Next() {
		var (
			rec           ledger.Record
			status        string
			contextJSON   []byte
			reasoningJSON []byte
			notesJSON     []byte
		)
		if err := rows.Scan(
			&rec.DecisionID, &rec.Actor, &rec.DecisionType, &rec.Timestamp,
			&rec.Chosen, &contextJSON, &reasoningJSON, &rec.Confidence,
			&rec.RiskScore, &status, &notesJSON, &rec.Hash,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		rec.ExecutionStatus = ledger.ExecutionStatus(status)
		_ = json.Unmarshal(contextJSON, &rec.Context)
		_ = json.Unmarshal(reasoningJSON, &rec.Reasoning)
		_ = json.Unmarshal(notesJSON, &rec.Notes)
		results = append(results, rec)
	}
	return results, rows.Err()
}
