// internal/browser/netwatch.go
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// netWatcher listens to CDP network events for one page and tracks in-flight
// requests. It exists to answer a single question: has the page been quiet
// for long enough to be considered settled.
type netWatcher struct {
	logger *zap.Logger

	mu       sync.RWMutex
	inflight map[network.RequestID]struct{}
	started  bool
}

func newNetWatcher(logger *zap.Logger) *netWatcher {
	return &netWatcher{
		logger:   logger.Named("netwatch"),
		inflight: make(map[network.RequestID]struct{}),
	}
}

// Start enables the network domain and begins tracking events. The listener
// lives until the page context is canceled.
func (w *netWatcher) Start(pageCtx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			w.mu.Lock()
			w.inflight[e.RequestID] = struct{}{}
			w.mu.Unlock()
		case *network.EventLoadingFinished:
			w.mu.Lock()
			delete(w.inflight, e.RequestID)
			w.mu.Unlock()
		case *network.EventLoadingFailed:
			w.mu.Lock()
			delete(w.inflight, e.RequestID)
			w.mu.Unlock()
		}
	})

	return chromedp.Run(pageCtx, network.Enable())
}

// inflightCount returns the number of requests currently in flight.
func (w *netWatcher) inflightCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.inflight)
}

// WaitNetworkIdle polls until no request has been in flight for the quiet
// period, or ctx is done.
func (w *netWatcher) WaitNetworkIdle(ctx context.Context, quiet time.Duration) error {
	// Check more frequently than the quiet period itself.
	ticker := time.NewTicker(quiet / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Network idle wait aborted.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			if n := w.inflightCount(); n > 0 {
				lastActivity = time.Now()
				w.logger.Debug("Waiting for network idle...", zap.Int("inflight_requests", n))
			} else if time.Since(lastActivity) >= quiet {
				return nil
			}
		}
	}
}
