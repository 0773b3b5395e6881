package ledger

/*
Файл archive.go реализует асинхронное зеркало журнала — перекачку записей
решений в PostgreSQL для полноисторийных выборок.

Ключевые особенности архитектуры:
- Non-blocking Mirror: неблокирующий канал между Hot Path моста и воркером.
  Задержки базы не влияют на время оценки решения.
- Batching: накопление записей и пакетная вставка по таймеру или при
  достижении лимита (100 записей).
- Drain Pattern & Graceful Shutdown: при остановке канал закрывается,
  воркер вычитывает остатки и делает финальный flush — записи не теряются
  при перезагрузке.
- Файловый журнал остается источником правды: потеря зеркала деградирует
  только полноту архивных выборок, а не аудит.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ArchiveStorage определяет, куда физически уезжают записи
type ArchiveStorage interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, records []Record) error
}

type Archiver struct {
	ch     chan Record
	repo   ArchiveStorage
	logger *zap.Logger
	wg     sync.WaitGroup
	// Защита от Mirror после остановки
	isClosed int32 // Атомарный флаг (0 - открыт, 1 - закрыт)
}

func NewArchiver(repo ArchiveStorage, logger *zap.Logger) *Archiver {
	return &Archiver{
		ch:     make(chan Record, 10000),
		repo:   repo,
		logger: logger.With(zap.String("mod", "archiver")),
	}
}

func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (a *Archiver) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&a.isClosed, 1)

	// 2. Крошечная пауза, чтобы текущие Mirror успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера только через закрытие входного канала
	a.logger.Info("stopping archiver: closing channel and flushing buffer...")
	close(a.ch)
	a.wg.Wait()
	a.logger.Info("archiver stopped gracefully")
}

// Mirror реализует ArchiveSink. Никогда не блокирует вызывающего:
// при переполнении буфера запись сбрасывается с ошибкой в лог
// (Load Shedding) — файловый журнал её уже сохранил.
func (a *Archiver) Mirror(rec Record) {
	if atomic.LoadInt32(&a.isClosed) == 1 {
		a.logger.Warn("archive record dropped: archiver is stopping",
			zap.String("decision_id", rec.DecisionID))
		return
	}

	select {
	case a.ch <- rec:
	default:
		a.logger.Error("archive_buffer_overflow",
			zap.String("decision_id", rec.DecisionID),
			zap.String("actor", rec.Actor),
		)
	}
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	batch := make([]Record, 0, 100)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к этому моменту может быть закрыт
			if err := a.repo.WriteBatch(context.Background(), batch); err != nil {
				a.logger.Error("archive flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case rec, ok := <-a.ch:
			if !ok {
				// Канал закрыт в Stop() — вычитали остатки, финальный сброс и выход
				flush()
				a.logger.Info("archive worker finished")
				return
			}
			batch = append(batch, rec)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
