// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
	"github.com/xkilldash9x/sessionforge/internal/config"
)

// Manager owns the browser process and hands out one tab per acquisition
// attempt. Browser launch is deferred until the first page is requested.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc

	mu sync.Mutex
	wg sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// Manager is the production DriverFactory.
var _ schemas.DriverFactory = (*Manager)(nil)

// NewManager creates a browser manager. The browser process is not launched
// until NewPage is first called.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
}

// initialize launches the shared browser process exactly once.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if !m.cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		if m.cfg.IgnoreTLSErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}
		for _, arg := range m.cfg.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}

		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
		m.browserCtx, m.browserStop = chromedp.NewContext(m.allocCtx)

		// The first Run materializes the browser process.
		if err := chromedp.Run(m.browserCtx); err != nil {
			m.allocCancel()
			m.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		m.logger.Info("Browser launched.", zap.Bool("headless", m.cfg.Headless))
	})
	return m.initErr
}

// NewPage creates a fresh tab with its own network watcher. The returned
// page must be closed by the caller; Close is idempotent.
func (m *Manager) NewPage(ctx context.Context) (schemas.PageDriver, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	pageID := uuid.New().String()
	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)

	// Materialize the tab before anything listens on it.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}

	pageLogger := m.logger.With(zap.String("page_id", pageID))
	watcher := newNetWatcher(pageLogger)
	if err := watcher.Start(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to start network watcher: %w", err)
	}

	m.wg.Add(1)
	page := &Page{
		id:         pageID,
		ctx:        tabCtx,
		cancel:     tabCancel,
		logger:     pageLogger,
		watcher:    watcher,
		navTimeout: m.cfg.NavigationTimeout,
		onClose:    m.wg.Done,
	}

	m.logger.Debug("New page created.", zap.String("page_id", pageID))
	return page, nil
}

// Shutdown waits for open pages to close, then tears down the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.allocCtx == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for pages to close; shutting down anyway.", zap.Error(ctx.Err()))
	}

	m.browserStop()
	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
