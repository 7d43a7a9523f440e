package presence

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/logging"
	"github.com/firemods/firecraft-launcher/internal/session"
	"github.com/firemods/firecraft-launcher/internal/status"
)

// DefaultRetry is the fixed delay between connection attempts
const DefaultRetry = 15 * time.Second

// Client is a presence connection
type Client interface {
	Login(appID string) error
	SetActivity(a Activity) error
	Logout()
}

// Publisher keeps one connection open and publishes activities to it.
// Nothing it does fails the caller: errors are logged and dropped.
type Publisher struct {
	client Client
	appID  string
	retry  backoff.BackOff
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	connected bool
	current   *Activity
	idleSince time.Time
	wasIdle   bool
	lost      chan struct{}
}

// NewPublisher creates a Publisher retrying every retry (DefaultRetry if zero)
func NewPublisher(client Client, appID string, retry time.Duration, logger *zap.Logger) *Publisher {
	if retry <= 0 {
		retry = DefaultRetry
	}
	return &Publisher{
		client: client,
		appID:  appID,
		retry:  backoff.NewConstantBackOff(retry),
		logger: logging.OrNop(logger),
		now:    time.Now,
		lost:   make(chan struct{}, 1),
	}
}

// Run connects and reconnects until ctx ends
func (p *Publisher) Run(ctx context.Context) error {
	for {
		if err := p.client.Login(p.appID); err != nil {
			p.logger.Debug("discord not reachable", zap.Error(err))
			if !p.sleep(ctx) {
				return nil
			}
			continue
		}
		p.logger.Info("discord presence connected")
		p.retry.Reset()
		p.onConnect()

		select {
		case <-ctx.Done():
			p.disconnect()
			return nil
		case <-p.lost:
			p.disconnect()
			p.logger.Info("discord presence lost, reconnecting")
			if !p.sleep(ctx) {
				return nil
			}
		}
	}
}

func (p *Publisher) sleep(ctx context.Context) bool {
	t := time.NewTimer(p.retry.NextBackOff())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *Publisher) onConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	if p.current != nil {
		p.publishLocked(*p.current)
	}
}

func (p *Publisher) disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client.Logout()
	p.connected = false
}

// Update publishes the activity for the given session and status. The
// latest activity is sent again on every (re)connect.
func (p *Publisher) Update(s session.Session, st status.Snapshot) {
	now := p.now()
	a := Build(s, st, now)

	p.mu.Lock()
	defer p.mu.Unlock()

	idle := s.State == session.Idle
	if idle && (!p.wasIdle || p.idleSince.IsZero()) {
		p.idleSince = now
	}
	p.wasIdle = idle
	if idle {
		a.Start = p.idleSince
	}

	p.current = &a
	if p.connected {
		p.publishLocked(a)
	}
}

func (p *Publisher) publishLocked(a Activity) {
	if err := p.client.SetActivity(a); err != nil {
		p.logger.Warn("presence update failed", zap.Error(err))
		p.connected = false
		select {
		case p.lost <- struct{}{}:
		default:
		}
	}
}
