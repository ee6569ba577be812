// internal/services/access_recorder.go
package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vistahub/license-gate/internal/metrics"
	"github.com/vistahub/license-gate/internal/models"
)

type AccessLogWriter interface {
	Append(ctx context.Context, entry *models.AccessLog) error
}

// AccessRecorder writes access logs in the background. Recording is best
// effort: a full buffer or a failed write is logged and counted, never
// returned to the caller.
type AccessRecorder struct {
	writer  AccessLogWriter
	entries chan *models.AccessLog
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAccessRecorder(writer AccessLogWriter, buffer int, timeout time.Duration) *AccessRecorder {
	if buffer < 1 {
		buffer = 1
	}
	r := &AccessRecorder{
		writer:  writer,
		entries: make(chan *models.AccessLog, buffer),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues entry without blocking.
func (r *AccessRecorder) Record(entry models.AccessLog) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.drop(&entry, metrics.CauseClosed)
		return
	}

	select {
	case r.entries <- &entry:
	default:
		r.drop(&entry, metrics.CauseBufferFull)
	}
}

// Close stops accepting entries and waits until the buffer is written out.
func (r *AccessRecorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()
	<-r.done
}

func (r *AccessRecorder) run() {
	defer close(r.done)
	for entry := range r.entries {
		r.write(entry)
	}
}

func (r *AccessRecorder) write(entry *models.AccessLog) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.writer.Append(ctx, entry); err != nil {
		metrics.AccessRecordFailuresTotal.WithLabelValues(metrics.CauseWriteFailed).Inc()
		logrus.WithError(err).WithFields(logrus.Fields{
			"license_key": entry.LicenseKey,
			"outcome":     entry.Outcome,
			"reason":      entry.Reason,
		}).Warn("Failed to record access")
	}
}

func (r *AccessRecorder) drop(entry *models.AccessLog, cause string) {
	metrics.AccessRecordFailuresTotal.WithLabelValues(cause).Inc()
	logrus.WithFields(logrus.Fields{
		"license_key": entry.LicenseKey,
		"outcome":     entry.Outcome,
		"cause":       cause,
	}).Warn("Access record dropped")
}
