package whatsapp

import (
	"context"
	"log"
	"sync"
	"time"
)

// Dispatcher runs best-effort sends off the caller's goroutine. Each send
// gets its own timeout and ignores the caller's cancellation; failures are
// logged and dropped.
type Dispatcher struct {
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{timeout: timeout}
}

// Go starts send in the background. what names the send in log lines.
func (d *Dispatcher) Go(ctx context.Context, what string, send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := send(ctx); err != nil {
			log.Printf("WARN: whatsapp %s: %v", what, err)
		}
	}()
}

// Wait blocks until every send started so far has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
