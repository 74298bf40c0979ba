package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu   sync.Mutex
	recs []Record
	err  error
}

func (m *memRepo) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, *rec)
	return nil
}

func (m *memRepo) List(context.Context, Filter) (*ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ListResult{Records: append([]Record(nil), m.recs...), Total: len(m.recs)}, nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type countingLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	l.warns++
	l.mu.Unlock()
}

func (l *countingLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestRecorderDropsWhenFull(t *testing.T) {
	repo := &memRepo{}
	logger := &countingLogger{}
	r := NewRecorder(repo, 2, logger)

	for range 3 {
		r.Record(Record{Action: ActionDisplayUpdate, TargetType: TargetEntity, Source: SourceAPI})
	}
	assert.Equal(t, 1, logger.warns)

	r.Drain()
	assert.Equal(t, 2, repo.count())
}

func TestRecorderRunWritesAndDrainsOnCancel(t *testing.T) {
	repo := &memRepo{}
	r := NewRecorder(repo, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	r.Record(Record{Action: ActionEntryAdd, TargetType: TargetEntry, TargetID: "e-1", Source: SourceAPI, OK: true})
	require.Eventually(t, func() bool { return repo.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	r.Record(Record{Action: ActionEntryRemove, TargetType: TargetEntry, TargetID: "e-1", Source: SourceAPI, OK: true})
	r.Drain()
	assert.Equal(t, 2, repo.count())
}

func TestRecorderLogsWriteFailures(t *testing.T) {
	repo := &memRepo{err: errors.New("disk full")}
	logger := &countingLogger{}
	r := NewRecorder(repo, 4, logger)

	r.Record(Record{Action: ActionEntryAdd, TargetType: TargetEntry, Source: SourceCLI})
	r.Drain()

	assert.Equal(t, 1, logger.errors)
	assert.Zero(t, repo.count())
}
