package status

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/logging"
)

// DefaultInterval is how often Run polls
const DefaultInterval = 5 * time.Second

// Options configures a Poller
type Options struct {
	Provider string
	// BaseURL replaces the provider's endpoint; the address is appended
	BaseURL string
	Timeout time.Duration
	// OnUpdate is called with every completed poll
	OnUpdate func(Snapshot)
}

// Poller keeps the latest snapshot, with at most one request in flight
type Poller struct {
	opts     Options
	http     *resty.Client
	logger   *zap.Logger
	now      func() time.Time
	inFlight atomic.Bool

	mu   sync.RWMutex
	last Snapshot
}

// NewPoller creates a Poller
func NewPoller(opts Options, logger *zap.Logger) *Poller {
	if opts.Provider == "" {
		opts.Provider = ProviderMinetools
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Second
	}
	return &Poller{
		opts:   opts,
		http:   resty.New().SetTimeout(opts.Timeout).SetHeader("User-Agent", "firecraft-launcher"),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

// Last returns the most recent snapshot
func (p *Poller) Last() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Poll fetches the status of address once. It returns false without doing
// anything if a poll is already running. Failures produce an offline snapshot.
func (p *Poller) Poll(ctx context.Context, address string) bool {
	if address == "" {
		return false
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer p.inFlight.Store(false)

	url := URL(p.opts.Provider, address)
	if p.opts.BaseURL != "" {
		url = p.opts.BaseURL + address
	}

	var snap Snapshot
	resp, err := p.http.R().SetContext(ctx).Get(url)
	switch {
	case err != nil:
		p.logger.Debug("status poll failed", zap.String("address", address), zap.Error(err))
	case resp.IsError():
		p.logger.Debug("status poll failed", zap.String("address", address), zap.Int("status", resp.StatusCode()))
	default:
		snap = Normalize(p.opts.Provider, resp.Body())
	}
	if ctx.Err() != nil {
		return true
	}
	snap.Address = address
	snap.FetchedAt = p.now()

	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()

	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(snap)
	}
	return true
}

// Run polls the address returned by address every interval until ctx ends,
// and returns once the last poll has finished. An empty address skips the
// tick; a tick landing on a slow poll is dropped.
func (p *Poller) Run(ctx context.Context, interval time.Duration, address func() string) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		addr := address()
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Poll(ctx, addr)
		}()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
