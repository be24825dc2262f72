package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tollgate-hq/tollgate/pkg/usage"
)

// Config contains configuration for the usage recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer. Zero
	// writes synchronously.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds a single append attempt.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxRetries is the number of retries after a failed append.
	// Default: 3
	MaxRetries int

	// RetryInterval is the initial backoff between retries.
	// Default: 100ms
	RetryInterval time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:   1000,
		WriteTimeout:  5 * time.Second,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// Observer receives recorder outcomes, typically a metrics collector.
type Observer interface {
	ObserveEventWrite(d time.Duration, err error)
	ObserveEventDrop()
}

// Stats is a snapshot of recorder counters.
type Stats struct {
	Written int64
	Failed  int64
	Dropped int64
	Pending int
}

// Recorder writes usage events to storage.
type Recorder struct {
	storage  usage.Storage
	config   *Config
	observer Observer
	events   chan *usage.Event
	wg       sync.WaitGroup
	done     chan struct{}
	logger   *slog.Logger

	// mu guards closed against concurrent Record calls so that no event is
	// enqueued after the worker has drained the channel.
	mu     sync.RWMutex
	closed bool

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// New creates a recorder. A nil config uses DefaultConfig.
func New(storage usage.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 100 * time.Millisecond
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "usage.recorder"),
	}

	if config.AsyncBuffer > 0 {
		r.events = make(chan *usage.Event, config.AsyncBuffer)
		r.wg.Add(1)
		go r.worker()
	}

	r.logger.Info("usage recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
		"max_retries", config.MaxRetries,
	)
	return r
}

// SetObserver installs an observer. It must be called before the first
// Record.
func (r *Recorder) SetObserver(o Observer) {
	r.observer = o
}

// Record submits an event. In async mode it never blocks: a full buffer
// drops the event and returns a RecorderError wrapping usage.ErrBufferFull.
// In sync mode it returns the final append error, if any.
func (r *Recorder) Record(ctx context.Context, ev *usage.Event) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(ev, "recorder closed")
		return usage.NewRecorderError(ev.ID, usage.ErrRecorderClosed)
	}

	if r.events == nil {
		return r.write(ctx, ev)
	}

	select {
	case r.events <- ev:
		return nil
	default:
		r.drop(ev, "buffer full")
		return usage.NewRecorderError(ev.ID, usage.ErrBufferFull)
	}
}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Written: r.written.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
		Pending: len(r.events),
	}
}

// Close stops accepting events and waits until buffered events are written.
// Close is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	r.logger.Info("shutting down usage recorder")
	r.wg.Wait()
	r.logger.Info("usage recorder shut down complete",
		"written", r.written.Load(),
		"failed", r.failed.Load(),
		"dropped", r.dropped.Load(),
	)
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case ev := <-r.events:
			_ = r.write(context.Background(), ev)

		case <-r.done:
			r.logger.Info("draining usage events before shutdown",
				"pending_count", len(r.events),
			)
			for {
				select {
				case ev := <-r.events:
					_ = r.write(context.Background(), ev)
				default:
					r.logger.Info("usage event channel drained")
					return
				}
			}
		}
	}
}

// write appends ev, retrying with exponential backoff.
func (r *Recorder) write(ctx context.Context, ev *usage.Event) error {
	start := time.Now()
	attempts := 0

	operation := func() error {
		attempts++
		writeCtx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
		defer cancel()
		return r.storage.Append(writeCtx, ev)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = r.config.RetryInterval
	expBackoff.MaxInterval = r.config.WriteTimeout
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(r.config.MaxRetries)), ctx)
	err := backoff.Retry(operation, policy)
	duration := time.Since(start)

	if r.observer != nil {
		r.observer.ObserveEventWrite(duration, err)
	}

	if err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to store usage event",
			"event_id", ev.ID,
			"key_id", ev.KeyID,
			"sequence", ev.Sequence,
			"attempts", attempts,
			"error", err,
		)
		return usage.NewRecorderError(ev.ID, err)
	}

	r.written.Add(1)
	r.logger.Debug("usage event recorded",
		"event_id", ev.ID,
		"key_id", ev.KeyID,
		"sequence", ev.Sequence,
		"duration_ms", duration.Milliseconds(),
	)

	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow usage event write",
			"event_id", ev.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
	return nil
}

func (r *Recorder) drop(ev *usage.Event, reason string) {
	r.dropped.Add(1)
	if r.observer != nil {
		r.observer.ObserveEventDrop()
	}
	r.logger.Error("dropping usage event",
		"event_id", ev.ID,
		"key_id", ev.KeyID,
		"sequence", ev.Sequence,
		"reason", reason,
	)
}
