package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
)

// LoggerConfig configures the async audit logger.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// CriticalWait is how long Log may block for buffer space when the
	// event is Critical. Other events never wait.
	CriticalWait time.Duration
	// Dropped counts discarded events by action.
	Dropped *prometheus.CounterVec
	Logger  *slog.Logger
}

// AsyncLogger implements Logger with a buffered channel and a background
// worker that writes batches.
type AsyncLogger struct {
	ch      chan Event
	store   *Store
	db      database.Querier
	cfg     LoggerConfig
	log     *slog.Logger
	dropped atomic.Uint64
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	once    sync.Once
}

const flushRetryDelay = 200 * time.Millisecond

// NewAsyncLogger creates and starts an async audit logger.
func NewAsyncLogger(db database.Querier, store *Store, cfg LoggerConfig) *AsyncLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 4096
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.CriticalWait <= 0 {
		cfg.CriticalWait = 250 * time.Millisecond
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &AsyncLogger{
		ch:     make(chan Event, cfg.BufferSize),
		store:  store,
		db:     db,
		cfg:    cfg,
		log:    log,
		cancel: cancel,
	}

	l.wg.Add(1)
	go l.worker(ctx)

	return l
}

// Log enqueues an audit event. When the buffer is full, ordinary events
// are dropped at once; critical events wait up to CriticalWait or until ctx
// is done before being dropped.
func (l *AsyncLogger) Log(ctx context.Context, event Event) {
	select {
	case l.ch <- event:
		return
	default:
	}

	if Critical(event.Action) && l.cfg.CriticalWait > 0 {
		timer := time.NewTimer(l.cfg.CriticalWait)
		defer timer.Stop()
		select {
		case l.ch <- event:
			return
		case <-timer.C:
		case <-ctx.Done():
		}
	}

	l.dropped.Add(1)
	if l.cfg.Dropped != nil {
		l.cfg.Dropped.WithLabelValues(event.Action).Inc()
	}
	l.log.Warn("audit buffer full, dropping event", "action", event.Action)
}

// Dropped returns the number of events discarded, whether the buffer was
// full or their batch could not be written.
func (l *AsyncLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Close flushes remaining events and stops the worker. It is safe to call
// more than once.
func (l *AsyncLogger) Close() error {
	l.once.Do(func() {
		l.cancel()
		l.wg.Wait()
	})
	return nil
}

func (l *AsyncLogger) worker(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []Event

	for {
		select {
		case <-ctx.Done():
			batch = append(batch, l.drainAll()...)
			l.flush(batch)
			return

		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= l.cfg.BatchSize {
				l.flush(batch)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = nil
			}
		}
	}
}

// flush writes events, retrying once after a short pause. A batch that
// fails twice is logged and discarded.
func (l *AsyncLogger) flush(events []Event) {
	if len(events) == 0 {
		return
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			time.Sleep(flushRetryDelay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = l.store.InsertBatch(ctx, l.db, events)
		cancel()
		if err == nil {
			return
		}
	}

	l.dropped.Add(uint64(len(events)))
	if l.cfg.Dropped != nil {
		for _, e := range events {
			l.cfg.Dropped.WithLabelValues(e.Action).Inc()
		}
	}
	l.log.Error("audit flush failed", "error", err, "count", len(events))
}

func (l *AsyncLogger) drainAll() []Event {
	var events []Event
	for {
		select {
		case e := <-l.ch:
			events = append(events, e)
		default:
			return events
		}
	}
}
