package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/firemods/firecraft-launcher/internal/logging"
)

const (
	// KeyringService is the OS keyring service holding launcher secrets
	KeyringService = "firecraft"
	keyringUser    = "microsoft"

	microsoftBase = "https://login.microsoftonline.com/consumers/oauth2/v2.0"
)

// MicrosoftEndpoint is the consumers-tenant endpoint with device authorization
var MicrosoftEndpoint = oauth2.Endpoint{
	AuthURL:       microsoftBase + "/authorize",
	TokenURL:      microsoftBase + "/token",
	DeviceAuthURL: microsoftBase + "/devicecode",
	AuthStyle:     oauth2.AuthStyleInParams,
}

// DeviceCode is what the user needs to complete a login in the browser
type DeviceCode struct {
	UserCode        string
	VerificationURI string
	ExpiresAt       time.Time
}

// Microsoft runs the device-code flow and caches the resulting token in
// the OS keyring. The token is handed to the launcher backend, which
// exchanges it for game credentials.
type Microsoft struct {
	cfg    *oauth2.Config
	logger *zap.Logger

	mu      sync.Mutex
	pending context.CancelFunc
	attempt uint64
}

// NewMicrosoft creates the flow for an Azure application client id
func NewMicrosoft(clientID string, endpoint oauth2.Endpoint, logger *zap.Logger) *Microsoft {
	return &Microsoft{
		cfg: &oauth2.Config{
			ClientID: clientID,
			Endpoint: endpoint,
			Scopes:   []string{"XboxLive.signin", "offline_access"},
		},
		logger: logging.OrNop(logger),
	}
}

// Login starts a device-code login, calling prompt once the code is known,
// and blocks until the user finishes, the code expires, or the login is
// cancelled. Starting a login cancels any login still pending.
func (m *Microsoft) Login(ctx context.Context, prompt func(DeviceCode)) (Credentials, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.pending != nil {
		m.pending()
	}
	m.pending = cancel
	m.attempt++
	attempt := m.attempt
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.attempt == attempt {
			m.pending = nil
		}
		m.mu.Unlock()
	}()

	da, err := m.cfg.DeviceAuth(ctx)
	if err != nil {
		return Credentials{}, m.loginErr(ctx, "failed to request device code", err)
	}
	if prompt != nil {
		prompt(DeviceCode{UserCode: da.UserCode, VerificationURI: da.VerificationURI, ExpiresAt: da.Expiry})
	}

	tok, err := m.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return Credentials{}, m.loginErr(ctx, "failed to complete login", err)
	}
	if err := saveToken(tok); err != nil {
		return Credentials{}, err
	}
	m.logger.Info("microsoft login complete")
	return credentialsFrom(tok), nil
}

func (m *Microsoft) loginErr(ctx context.Context, msg string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ErrLoginCancelled
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Cancel aborts a pending login, if any
func (m *Microsoft) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending != nil {
		m.pending()
		m.pending = nil
	}
}

// CancelOnLine cancels the pending login once a line is read from r. Call
// it from the Login prompt, when the login is known to be pending. End of
// input does not cancel.
func (m *Microsoft) CancelOnLine(r io.Reader) {
	go func() {
		if _, err := bufio.NewReader(r).ReadString('\n'); err == nil {
			m.logger.Info("microsoft login cancelled by user")
			m.Cancel()
		}
	}()
}

// Cached returns the stored session, refreshing an expired access token
func (m *Microsoft) Cached(ctx context.Context) (Credentials, error) {
	tok, err := loadToken()
	if err != nil {
		return Credentials{}, err
	}
	if tok.Valid() {
		return credentialsFrom(tok), nil
	}

	fresh, err := m.cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to refresh microsoft session: %w", err)
	}
	if err := saveToken(fresh); err != nil {
		return Credentials{}, err
	}
	m.logger.Debug("microsoft session refreshed")
	return credentialsFrom(fresh), nil
}

// Logout forgets the stored session
func (m *Microsoft) Logout() error {
	err := keyring.Delete(KeyringService, keyringUser)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to remove microsoft session: %w", err)
	}
	return nil
}

func credentialsFrom(tok *oauth2.Token) Credentials {
	return Credentials{AccessToken: tok.AccessToken, Type: TypeMicrosoft}
}

func saveToken(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := keyring.Set(KeyringService, keyringUser, string(data)); err != nil {
		return fmt.Errorf("failed to store microsoft session: %w", err)
	}
	return nil
}

func loadToken() (*oauth2.Token, error) {
	data, err := keyring.Get(KeyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read microsoft session: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, fmt.Errorf("failed to decode microsoft session: %w", err)
	}
	return &tok, nil
}
