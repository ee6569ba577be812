package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/vistahub/license-gate/internal/metrics"
	"github.com/vistahub/license-gate/internal/models"
)

type memoryAccessLog struct {
	mu      sync.Mutex
	entries []models.AccessLog
	err     error
	block   chan struct{}
}

func (m *memoryAccessLog) Append(ctx context.Context, entry *models.AccessLog) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryAccessLog) all() []models.AccessLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AccessLog(nil), m.entries...)
}

func TestAccessRecorderDrainsOnClose(t *testing.T) {
	log := &memoryAccessLog{}
	r := NewAccessRecorder(log, 16, time.Second)

	for i := 0; i < 10; i++ {
		r.Record(models.AccessLog{LicenseKey: "K", Outcome: models.AccessOutcomeGranted})
	}
	r.Close()

	assert.Len(t, log.all(), 10)
}

func TestAccessRecorderDropsWhenFull(t *testing.T) {
	log := &memoryAccessLog{block: make(chan struct{})}
	r := NewAccessRecorder(log, 1, time.Second)

	before := testutil.ToFloat64(metrics.AccessRecordFailuresTotal.WithLabelValues(metrics.CauseBufferFull))

	// The worker holds one entry while blocked and the buffer holds another,
	// so the rest must be dropped without blocking the caller.
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			r.Record(models.AccessLog{LicenseKey: "K"})
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(log.block)
	r.Close()

	after := testutil.ToFloat64(metrics.AccessRecordFailuresTotal.WithLabelValues(metrics.CauseBufferFull))
	stored := len(log.all())
	assert.GreaterOrEqual(t, stored, 1)
	assert.Equal(t, float64(5-stored), after-before)
}

func TestAccessRecorderWriteFailureIsCounted(t *testing.T) {
	log := &memoryAccessLog{err: errors.New("disk full")}
	r := NewAccessRecorder(log, 4, time.Second)

	before := testutil.ToFloat64(metrics.AccessRecordFailuresTotal.WithLabelValues(metrics.CauseWriteFailed))
	r.Record(models.AccessLog{LicenseKey: "K"})
	r.Close()

	after := testutil.ToFloat64(metrics.AccessRecordFailuresTotal.WithLabelValues(metrics.CauseWriteFailed))
	assert.Equal(t, float64(1), after-before)
}

func TestAccessRecorderRecordAfterClose(t *testing.T) {
	log := &memoryAccessLog{}
	r := NewAccessRecorder(log, 4, time.Second)
	r.Close()
	r.Close()

	assert.NotPanics(t, func() { r.Record(models.AccessLog{LicenseKey: "K"}) })
	assert.Empty(t, log.all())
}
