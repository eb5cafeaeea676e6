package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// HistoryWriter buffers run records and writes them to the database in the
// background, so a slow or flapping database never blocks a request.
type HistoryWriter struct {
	db   *DB
	ch   chan *Run
	wg   sync.WaitGroup
	done chan struct{}
}

func NewHistoryWriter(db *DB, bufferSize int) *HistoryWriter {
	if bufferSize < 1 {
		bufferSize = 10000
	}
	return &HistoryWriter{
		db:   db,
		ch:   make(chan *Run, bufferSize),
		done: make(chan struct{}),
	}
}

func (w *HistoryWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

func (w *HistoryWriter) Log(run *Run) {
	select {
	case w.ch <- run:
	default:
		log.Warn().Str("run_id", run.ID).Msg("history buffer full, dropping record")
	}
}

func (w *HistoryWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("history writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("history writer flush timed out")
	}
}

func (w *HistoryWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case run := <-w.ch:
			w.writeWithRetry(run)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case run := <-w.ch:
					w.writeWithRetry(run)
				default:
					return
				}
			}
		}
	}
}

func (w *HistoryWriter) writeWithRetry(run *Run) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.db.LogRun(ctx, run)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			log.Warn().
				Err(err).
				Str("run_id", run.ID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("history write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("run_id", run.ID).
				Msg("history write failed permanently after retries")
		}
	}
}
