package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/streamwatch/telemetry"
)

// Persister writes status updates on a small worker pool, detached from the request
// that produced them. Submit never blocks: a full queue drops the update.
type Persister struct {
	writer  StatusWriter
	queue   chan StatusUpdate
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// OnError is called after a failed write. Optional; must be set before the first Submit.
	OnError func(u StatusUpdate, err error)
}

// NewPersister starts workers consuming a queue of size entries. Each write gets its own
// timeout derived from a background context.
func NewPersister(w StatusWriter, workers, size int, timeout time.Duration) *Persister {
	if workers <= 0 {
		workers = 2
	}
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	p := &Persister{writer: w, queue: make(chan StatusUpdate, size), timeout: timeout}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Submit enqueues u and reports whether it was accepted.
func (p *Persister) Submit(u StatusUpdate) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- u:
		telemetry.SetPersistQueueDepth(len(p.queue))
		return true
	default:
		telemetry.ObservePersistDropped()
		slog.Warn("status write queue full; dropping update",
			slog.String("username", u.Username),
			slog.String("component", "persist"))
		return false
	}
}

// Close stops accepting updates and waits for queued ones to drain, or for ctx.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persister) run() {
	defer p.wg.Done()
	for u := range p.queue {
		telemetry.SetPersistQueueDepth(len(p.queue))
		p.write(u)
	}
}

func (p *Persister) write(u StatusUpdate) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_, err := p.writer.UpdateStatus(ctx, u.Platform, u.Username, u.IsLive, u.CheckedAt)
	telemetry.ObserveStatusWrite(err == nil)
	if err == nil {
		return
	}
	perr := &PersistenceError{Platform: u.Platform, Username: u.Username, Err: err}
	slog.Warn("status write failed", slog.Any("err", perr), slog.String("component", "persist"))
	if p.OnError != nil {
		p.OnError(u, perr)
	}
}
