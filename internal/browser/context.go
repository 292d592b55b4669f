// internal/browser/context.go
package browser

import "context"

// combineContext creates a context derived from primary that is canceled when
// either primary or secondary is done. Primary carries the CDP target values,
// so chromedp operations must derive from it; secondary carries the caller's
// operational deadline.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
