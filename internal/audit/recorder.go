package audit

import (
	"context"
	"time"
)

// DefaultBufferSize is the number of records a Recorder queues before
// dropping.
const DefaultBufferSize = 256

// writeTimeout bounds one repository write.
const writeTimeout = 5 * time.Second

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder queues records and writes them serially.
//
// Thread Safety: Record is safe for concurrent use. Run and Drain must not
// run at the same time.
type Recorder struct {
	repo   Repository
	ch     chan *Record
	logger Logger
}

// NewRecorder creates a recorder writing to repo. A non-positive size uses
// DefaultBufferSize; a nil logger discards.
func NewRecorder(repo Repository, size int, logger Logger) *Recorder {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, ch: make(chan *Record, size), logger: logger}
}

// Record enqueues rec. It never blocks; when the buffer is full rec is
// dropped and a warning logged.
func (r *Recorder) Record(rec Record) {
	select {
	case r.ch <- &rec:
	default:
		r.logger.Warn("audit buffer full, dropping record",
			"action", rec.Action,
			"target_type", rec.TargetType,
		)
	}
}

// Run writes queued records until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case rec := <-r.ch:
			r.write(rec)
		case <-ctx.Done():
			r.Drain()
			return
		}
	}
}

// Drain writes every queued record and returns.
func (r *Recorder) Drain() {
	for {
		select {
		case rec := <-r.ch:
			r.write(rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, rec); err != nil {
		r.logger.Error("audit log write failed",
			"action", rec.Action,
			"target_id", rec.TargetID,
			"error", err,
		)
	}
}
