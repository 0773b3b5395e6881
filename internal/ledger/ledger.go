package ledger

/*
Файл ledger.go реализует журнал решений — append-only лог в формате JSON Lines
плюс ограниченный in-memory кэш последних записей.

Разделение видимости сделано явным:
  - точечный GetDecision видит весь файл (кэш, затем линейный скан);
  - выборки Recent* / ByType / ByActor / ByTimeRange видят ТОЛЬКО кэш
    (последние cache_capacity записей) — полная история доступна
    через Postgres-зеркало (repository/postgres);
  - счетчики по типам и акторам строятся из всего файла при старте.

Генерация DEC-идентификаторов закрыта мьютексом журнала: журнал — единственный
владелец последовательности, гонок смежных инкрементов нет.
*/

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/infra"
)

// ArchiveSink — необязательное зеркало записей (например, Postgres-архив).
// Вызывается и при создании записи, и при смене статуса исполнения.
type ArchiveSink interface {
	Mirror(rec Record)
}

type Ledger struct {
	mu sync.Mutex

	path     string
	file     *os.File
	cacheCap int

	cache []*Record // последние записи, старые в начале
	seq   int64     // продолжается с количества записей в файле

	typeCounts  map[string]int64
	actorCounts map[string]int64

	// Типы, считающиеся критическими для фильтра CriticalDecisions
	alwaysCritical map[string]struct{}

	archive ArchiveSink
	logger  *zap.Logger
}

// NewLedger открывает (или создает) файл журнала и реплеит его содержимое.
// Отсутствие пути — ошибка конструктора; битые строки при реплее — нет.
func NewLedger(cfg infra.LedgerConfig, logger *zap.Logger) (*Ledger, error) {
	if cfg.StoragePath == "" {
		return nil, fmt.Errorf("ledger: storage path is required")
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 1000
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StoragePath), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create storage dir: %w", err)
	}

	l := &Ledger{
		path:           cfg.StoragePath,
		cacheCap:       cfg.CacheCapacity,
		cache:          make([]*Record, 0, cfg.CacheCapacity),
		typeCounts:     make(map[string]int64),
		actorCounts:    make(map[string]int64),
		alwaysCritical: make(map[string]struct{}),
		logger:         logger.Named("ledger"),
	}

	if err := l.replay(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(cfg.StoragePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open storage file: %w", err)
	}
	l.file = f

	l.logger.Info("ledger ready",
		zap.String("path", cfg.StoragePath),
		zap.Int64("replayed", l.seq),
		zap.Int("cached", len(l.cache)),
	)
	return l, nil
}

// SetArchive подключает зеркало. Вызывается один раз при сборке сервиса.
func (l *Ledger) SetArchive(sink ArchiveSink) {
	l.mu.Lock()
	l.archive = sink
	l.mu.Unlock()
}

// SetCriticalTypes задает набор типов для фильтра критических решений.
func (l *Ledger) SetCriticalTypes(types map[string]struct{}) {
	l.mu.Lock()
	l.alwaysCritical = types
	l.mu.Unlock()
}

// replay восстанавливает кэш и счетчики из файла. Счетчики считаются по
// ВСЕМУ файлу, кэш сохраняет только последние cacheCap записей.
// Битые строки логируются и пропускаются — старт никогда не падает из-за них.
func (l *Ledger) replay() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Свежий журнал
		}
		return fmt.Errorf("ledger: open for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			l.logger.Warn("skipping malformed ledger line",
				zap.Int("line", lineNo), zap.Error(err))
			continue
		}

		l.seq++
		l.typeCounts[rec.DecisionType]++
		l.actorCounts[rec.Actor]++

		l.cache = append(l.cache, &rec)
		if len(l.cache) > l.cacheCap {
			l.cache = l.cache[len(l.cache)-l.cacheCap:]
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("ledger: replay scan: %w", err)
	}
	return nil
}

// RecordDecision назначает ID (если не задан), проставляет отпечаток и
// дописывает запись одной строкой в файл. Бизнес-валидации нет: корректно
// сформированная запись не отклоняется никогда. Ошибка здесь — только I/O,
// и она фатальна для аудиторского следа этого решения.
func (l *Ledger) RecordDecision(rec *Record) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.DecisionID == "" {
		l.seq++
		rec.DecisionID = fmt.Sprintf("DEC-%s-%04d", rec.Timestamp.Format("20060102"), l.seq)
	} else {
		l.seq++
	}
	if rec.ExecutionStatus == "" {
		rec.ExecutionStatus = StatusPending
	}
	// Отпечаток считается ровно один раз, при создании
	if rec.Hash == "" {
		rec.Hash = fingerprint(rec.DecisionID, rec.Actor, rec.DecisionType, rec.Timestamp)
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("ledger: marshal record: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("ledger: append record: %w", err)
	}

	l.typeCounts[rec.DecisionType]++
	l.actorCounts[rec.Actor]++

	l.cache = append(l.cache, rec)
	if len(l.cache) > l.cacheCap {
		l.cache = l.cache[len(l.cache)-l.cacheCap:]
	}

	if l.archive != nil {
		l.archive.Mirror(*rec)
	}

	return rec.DecisionID, nil
}

// GetDecision — точечный поиск: кэш от свежих к старым, затем линейный скан файла.
func (l *Ledger) GetDecision(id string) *Record {
	l.mu.Lock()
	for i := len(l.cache) - 1; i >= 0; i-- {
		if l.cache[i].DecisionID == id {
			cp := *l.cache[i]
			l.mu.Unlock()
			return &cp
		}
	}
	l.mu.Unlock()

	// Запись могла вытесниться из кэша — читаем файл
	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		if rec.DecisionID == id {
			return &rec
		}
	}
	return nil
}

// Recent возвращает последние limit записей из кэша (свежие первыми).
func (l *Ledger) Recent(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(limit, func(*Record) bool { return true })
}

// RecentByType — кэш-выборка по типу решения.
func (l *Ledger) RecentByType(decisionType string, limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(limit, func(r *Record) bool { return r.DecisionType == decisionType })
}

// RecentByActor — кэш-выборка по актору.
func (l *Ledger) RecentByActor(actor string, limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(limit, func(r *Record) bool { return r.Actor == actor })
}

// RecentByTimeRange — кэш-выборка по интервалу времени (включительно).
func (l *Ledger) RecentByTimeRange(from, to time.Time, limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(limit, func(r *Record) bool {
		return !r.Timestamp.Before(from) && !r.Timestamp.After(to)
	})
}

// CriticalDecisions — записи за последние hours часов, критические по типу
// либо по риску выше 0.7. Кэш-выборка, как и остальные Recent*.
func (l *Ledger) CriticalDecisions(hours int) []Record {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterLocked(0, func(r *Record) bool {
		if r.Timestamp.Before(cutoff) {
			return false
		}
		if _, ok := l.alwaysCritical[r.DecisionType]; ok {
			return true
		}
		return r.RiskScore > 0.7
	})
}

// filterLocked собирает подходящие записи от свежих к старым.
func (l *Ledger) filterLocked(limit int, keep func(*Record) bool) []Record {
	out := make([]Record, 0, 16)
	for i := len(l.cache) - 1; i >= 0; i-- {
		if keep(l.cache[i]) {
			out = append(out, *l.cache[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// MarkExecuted переводит запись в executed. Повторный вызов — no-op с true.
// Неизвестный ID или терминальный конфликтующий статус — false, без паники.
func (l *Ledger) MarkExecuted(id string) bool {
	return l.transition(id, StatusExecuted, "")
}

// MarkFailed фиксирует неудачное исполнение с причиной в Notes.
func (l *Ledger) MarkFailed(id, reason string) bool {
	return l.transition(id, StatusFailed, reason)
}

// MarkReversed откатывает решение. Допустим только для обратимых записей
// в статусе pending или executed.
func (l *Ledger) MarkReversed(id, reason string) bool {
	return l.transition(id, StatusReversed, reason)
}

func (l *Ledger) transition(id string, next ExecutionStatus, note string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var rec *Record
	for i := len(l.cache) - 1; i >= 0; i-- {
		if l.cache[i].DecisionID == id {
			rec = l.cache[i]
			break
		}
	}
	if rec == nil {
		return false // Нечего обновлять
	}

	if rec.ExecutionStatus == next {
		return true // Идемпотентный повтор
	}

	switch next {
	case StatusExecuted, StatusFailed:
		if rec.ExecutionStatus != StatusPending {
			return false
		}
	case StatusReversed:
		if !rec.Reversible {
			return false
		}
		if rec.ExecutionStatus != StatusPending && rec.ExecutionStatus != StatusExecuted {
			return false
		}
	default:
		return false
	}

	rec.ExecutionStatus = next
	if note != "" {
		rec.Notes = append(rec.Notes, note)
	}

	if l.archive != nil {
		l.archive.Mirror(*rec)
	}
	return true
}

// ExportCSV сериализует кэш (не весь файл) в CSV с фиксированным набором колонок.
func (l *Ledger) ExportCSV(path string) error {
	l.mu.Lock()
	rows := make([]Record, len(l.cache))
	for i, rec := range l.cache {
		rows[i] = *rec
	}
	l.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ledger: create csv: %w", err)
	}
	defer f.Close()

	return l.WriteCSV(f, rows)
}

// WriteCSV пишет записи в произвольный writer (файл или HTTP-ответ).
func (l *Ledger) WriteCSV(w io.Writer, rows []Record) error {
	cw := csv.NewWriter(w)
	header := []string{
		"decision_id", "timestamp", "actor", "decision_type", "chosen",
		"confidence", "risk_score", "validated_by", "execution_status", "hash",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("ledger: write csv header: %w", err)
	}

	for _, rec := range rows {
		row := []string{
			rec.DecisionID,
			rec.Timestamp.Format(time.RFC3339),
			rec.Actor,
			rec.DecisionType,
			rec.Chosen,
			strconv.FormatFloat(rec.Confidence, 'f', 4, 64),
			strconv.FormatFloat(rec.RiskScore, 'f', 4, 64),
			rec.ValidatedBy,
			string(rec.ExecutionStatus),
			rec.Hash,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("ledger: write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Counts — счетчики по типам и акторам за всю историю файла.
func (l *Ledger) Counts() (byType, byActor map[string]int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byType = make(map[string]int64, len(l.typeCounts))
	for k, v := range l.typeCounts {
		byType[k] = v
	}
	byActor = make(map[string]int64, len(l.actorCounts))
	for k, v := range l.actorCounts {
		byActor[k] = v
	}
	return byType, byActor
}

// TotalDecisions — сколько записей журнал видел за всю историю.
func (l *Ledger) TotalDecisions() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Close закрывает файловый дескриптор журнала.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
