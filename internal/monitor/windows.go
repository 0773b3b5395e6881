package monitor

import (
	"time"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
)

// Константы окон наблюдения. Три независимых буфера, каждый со своим
// горизонтом: короткий для скорости, средний для паттернов, длинный для объема.
const (
	windowShort  = 5 * time.Minute
	windowMedium = 1 * time.Hour
	windowLong   = 24 * time.Hour
)

// eventWindow — буфер событий, ограниченный и по возрасту, и по вместимости.
// Старые записи тихо вытесняются; ошибок у операций нет.
type eventWindow struct {
	retention time.Duration
	capacity  int
	events    []domain.ActionEvent
}

func newEventWindow(retention time.Duration, capacity int) *eventWindow {
	return &eventWindow{
		retention: retention,
		capacity:  capacity,
		events:    make([]domain.ActionEvent, 0, 64),
	}
}

// add дописывает событие. При переполнении вытесняется самое старое.
func (w *eventWindow) add(ev domain.ActionEvent) {
	w.events = append(w.events, ev)
	if w.capacity > 0 && len(w.events) > w.capacity {
		// Сдвигаем, а не реаллоцируем: окно живет долго
		copy(w.events, w.events[len(w.events)-w.capacity:])
		w.events = w.events[:w.capacity]
	}
}

// prune выбрасывает события старше retention. Вызывается в начале каждой оценки.
func (w *eventWindow) prune(now time.Time) {
	cutoff := now.Add(-w.retention)
	idx := 0
	for idx < len(w.events) && w.events[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.events = append(w.events[:0], w.events[idx:]...)
	}
}

func (w *eventWindow) count() int {
	return len(w.events)
}

// distinctAccounts возвращает число уникальных аккаунтов в окне.
func (w *eventWindow) distinctAccounts() int {
	seen := make(map[string]struct{}, len(w.events))
	for _, ev := range w.events {
		seen[ev.AccountID] = struct{}{}
	}
	return len(seen)
}

// typeFrequencies возвращает частоты типов действий в окне.
func (w *eventWindow) typeFrequencies() map[string]int {
	freq := make(map[string]int, 8)
	for _, ev := range w.events {
		freq[ev.ActionType]++
	}
	return freq
}

// intervals возвращает интервалы между соседними событиями в секундах.
// События добавляются в порядке поступления, сортировка не нужна.
func (w *eventWindow) intervals() []float64 {
	if len(w.events) < 2 {
		return nil
	}
	out := make([]float64, 0, len(w.events)-1)
	for i := 1; i < len(w.events); i++ {
		out = append(out, w.events[i].Timestamp.Sub(w.events[i-1].Timestamp).Seconds())
	}
	return out
}
