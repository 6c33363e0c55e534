package persist

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// JournalSink stores a batch of entries. *JournalRepo implements it.
type JournalSink interface {
	Insert(ctx context.Context, entries []JournalEntry) error
}

const (
	journalBatch = 64
	journalFlush = time.Second
	drainTimeout = 5 * time.Second
)

// JournalWriter batches entries off the game loop. Enqueue never blocks; a
// full buffer drops the entry.
type JournalWriter struct {
	sink    JournalSink
	ch      chan JournalEntry
	dropped atomic.Int64
	log     *zap.Logger
}

func NewJournalWriter(sink JournalSink, buffer int, log *zap.Logger) *JournalWriter {
	if buffer <= 0 {
		buffer = 256
	}
	return &JournalWriter{
		sink: sink,
		ch:   make(chan JournalEntry, buffer),
		log:  log,
	}
}

// Enqueue queues e for the next batch. Safe from any goroutine.
func (w *JournalWriter) Enqueue(e JournalEntry) bool {
	select {
	case w.ch <- e:
		return true
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("日誌緩衝區已滿，丟棄紀錄")
		}
		return false
	}
}

// Dropped returns how many entries were discarded so far.
func (w *JournalWriter) Dropped() int64 {
	return w.dropped.Load()
}

// Run writes batches until ctx is done, then drains whatever is queued.
func (w *JournalWriter) Run(ctx context.Context) error {
	ticker := time.NewTicker(journalFlush)
	defer ticker.Stop()

	batch := make([]JournalEntry, 0, journalBatch)
	for {
		select {
		case e := <-w.ch:
			batch = append(batch, e)
			if len(batch) >= journalBatch {
				batch = w.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = w.flush(ctx, batch)
		case <-ctx.Done():
			w.drain(batch)
			return nil
		}
	}
}

func (w *JournalWriter) drain(batch []JournalEntry) {
	for {
		select {
		case e := <-w.ch:
			batch = append(batch, e)
		default:
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			w.flush(ctx, batch)
			return
		}
	}
}

func (w *JournalWriter) flush(ctx context.Context, batch []JournalEntry) []JournalEntry {
	if len(batch) == 0 {
		return batch
	}
	if err := w.sink.Insert(ctx, batch); err != nil {
		w.log.Error("日誌寫入失敗", zap.Int("entries", len(batch)), zap.Error(err))
	} else {
		w.log.Debug("日誌已寫入", zap.Int("entries", len(batch)))
	}
	return batch[:0]
}
