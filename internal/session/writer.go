package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/browserbase-control/internal/logging"
	"github.com/shehryarbajwa/browserbase-control/internal/store"
	"github.com/shehryarbajwa/browserbase-control/pkg/models"
)

// credentialWriter hands captured credentials to the sink one at a time, in
// capture order. Enqueueing never blocks, so browser hooks can call it.
type credentialWriter struct {
	sink   store.CredentialSink
	logger *zap.Logger

	mu      sync.Mutex
	pending []models.CapturedCredential
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newCredentialWriter(sink store.CredentialSink, logger *zap.Logger) *credentialWriter {
	w := &credentialWriter{
		sink:   sink,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *credentialWriter) enqueue(c models.CapturedCredential) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("credential not stored: writer closed", logging.Token(c.SessionToken))
		return
	}
	w.pending = append(w.pending, c)
	w.mu.Unlock()
	w.signal()
}

// close stops accepting credentials; run drains what is queued and exits
func (w *credentialWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
}

func (w *credentialWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *credentialWriter) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		batch := w.pending
		w.pending = nil
		closed := w.closed
		w.mu.Unlock()

		for _, c := range batch {
			if err := w.sink.SaveCredential(context.Background(), c); err != nil {
				w.logger.Error("failed to store credential", logging.Token(c.SessionToken), zap.Error(err))
			}
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-w.wake
	}
}
