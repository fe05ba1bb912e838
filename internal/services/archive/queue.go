// Package archive writes completed turns to the document store in the
// background, so a slow store never holds up a stream.
package archive

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unifiedui/chat-relay/internal/core/docdb"
	"github.com/unifiedui/chat-relay/internal/domain/models"
)

const (
	// DefaultBufferSize is the number of turns held while workers are busy.
	DefaultBufferSize = 100
	// DefaultWorkers is the number of concurrent store writers.
	DefaultWorkers = 2
	// DefaultWriteTimeout bounds a single store write.
	DefaultWriteTimeout = 5 * time.Second
)

var (
	// ErrQueueFull is returned when the buffer is full. The turn is dropped.
	ErrQueueFull = errors.New("archive queue is full")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("archive queue is stopped")
)

// Config holds the configuration for the archive queue.
type Config struct {
	Turns        docdb.TurnsCollection
	BufferSize   int
	WriteTimeout time.Duration
}

// Queue buffers turn records and writes them with a pool of workers.
type Queue struct {
	turns        docdb.TurnsCollection
	jobs         chan *models.TurnRecord
	writeTimeout time.Duration

	wg      sync.WaitGroup
	mu      sync.RWMutex
	started bool
	stopped bool

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewQueue creates a new archive queue. Call Start before recording.
func NewQueue(cfg *Config) (*Queue, error) {
	if cfg == nil || cfg.Turns == nil {
		return nil, errors.New("turns collection is required")
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	return &Queue{
		turns:        cfg.Turns,
		jobs:         make(chan *models.TurnRecord, bufferSize),
		writeTimeout: writeTimeout,
	}, nil
}

// Start starts the queue workers. Later calls are ignored.
func (q *Queue) Start(workerCount int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started || q.stopped {
		return
	}
	q.started = true

	if workerCount <= 0 {
		workerCount = DefaultWorkers
	}
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for turn := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.writeTimeout)
		err := q.turns.Record(ctx, turn)
		cancel()

		if err != nil {
			q.failed.Add(1)
			log.Warn().Err(err).
				Str("session_id", turn.SessionID).
				Str("correlation_id", turn.CorrelationID).
				Msg("failed to archive turn")
		}
	}
}

// Record enqueues turn without blocking.
func (q *Queue) Record(_ context.Context, turn *models.TurnRecord) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.stopped {
		return ErrStopped
	}

	select {
	case q.jobs <- turn:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop rejects new turns and waits until the buffered ones are written.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.jobs)
	started := q.started
	q.mu.Unlock()

	if !started {
		return
	}
	q.wg.Wait()
}

// Len returns the number of turns waiting to be written.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Dropped returns the number of turns rejected because the buffer was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Failed returns the number of store writes that failed.
func (q *Queue) Failed() int64 {
	return q.failed.Load()
}
