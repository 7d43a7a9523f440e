package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// oauthServer fakes the device authorization and token endpoints. Token
// requests answer authorization_pending until approved is set, or until the
// device code matches only.
type oauthServer struct {
	*httptest.Server
	approved atomic.Bool
	only     atomic.Value
	issued   atomic.Int32
}

func newOAuthServer(t *testing.T) *oauthServer {
	t.Helper()
	s := &oauthServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":      fmt.Sprintf("dev-%d", s.issued.Add(1)),
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://microsoft.com/devicelogin",
			"expires_in":       900,
			"interval":         1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("grant_type") == "refresh_token" {
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "refreshed", "token_type": "Bearer", "refresh_token": "r2", "expires_in": 3600,
			})
			return
		}
		only, _ := s.only.Load().(string)
		if !s.approved.Load() && (only == "" || r.Form.Get("device_code") != only) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "authorization_pending"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "ms-token", "token_type": "Bearer", "refresh_token": "r1", "expires_in": 3600,
		})
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

func (s *oauthServer) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:       s.URL + "/authorize",
		TokenURL:      s.URL + "/token",
		DeviceAuthURL: s.URL + "/devicecode",
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

func TestMicrosoftLogin(t *testing.T) {
	keyring.MockInit()
	server := newOAuthServer(t)
	server.approved.Store(true)
	m := NewMicrosoft("client", server.endpoint(), nil)

	var code DeviceCode
	creds, err := m.Login(context.Background(), func(dc DeviceCode) { code = dc })
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if code.UserCode != "ABCD-EFGH" || code.VerificationURI == "" {
		t.Errorf("prompt got %+v", code)
	}
	if creds.AccessToken != "ms-token" || creds.Type != TypeMicrosoft {
		t.Errorf("Login() = %+v", creds)
	}

	cached, err := m.Cached(context.Background())
	if err != nil {
		t.Fatalf("Cached() error = %v", err)
	}
	if cached.AccessToken != "ms-token" {
		t.Errorf("Cached() = %+v", cached)
	}

	if err := m.Logout(); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := m.Cached(context.Background()); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Cached() after logout error = %v, want ErrNotLoggedIn", err)
	}
	if err := m.Logout(); err != nil {
		t.Errorf("second Logout() error = %v", err)
	}
}

func TestMicrosoftCancel(t *testing.T) {
	keyring.MockInit()
	server := newOAuthServer(t)
	m := NewMicrosoft("client", server.endpoint(), nil)

	prompted := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), func(DeviceCode) { close(prompted) })
		done <- err
	}()

	<-prompted
	m.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrLoginCancelled) {
			t.Errorf("Login() error = %v, want ErrLoginCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Login() did not return after Cancel()")
	}
}

func TestMicrosoftCancelOnLine(t *testing.T) {
	keyring.MockInit()
	server := newOAuthServer(t)
	m := NewMicrosoft("client", server.endpoint(), nil)

	in, typed := io.Pipe()
	defer typed.Close()
	prompted := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), func(DeviceCode) {
			m.CancelOnLine(in)
			close(prompted)
		})
		done <- err
	}()

	<-prompted
	select {
	case err := <-done:
		t.Fatalf("Login() returned before any input: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if _, err := io.WriteString(typed, "\n"); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrLoginCancelled) {
			t.Errorf("Login() error = %v, want ErrLoginCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Login() did not return after Enter")
	}
}

func TestCancelOnLineIgnoresEOF(t *testing.T) {
	keyring.MockInit()
	server := newOAuthServer(t)
	m := NewMicrosoft("client", server.endpoint(), nil)

	prompted := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), func(DeviceCode) {
			m.CancelOnLine(strings.NewReader(""))
			close(prompted)
		})
		done <- err
	}()

	<-prompted
	select {
	case err := <-done:
		t.Fatalf("closed input cancelled the login: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	m.Cancel()
	<-done
}

func TestMicrosoftLoginSupersedes(t *testing.T) {
	keyring.MockInit()
	server := newOAuthServer(t)
	m := NewMicrosoft("client", server.endpoint(), nil)

	prompted := make(chan struct{})
	first := make(chan error, 1)
	go func() {
		_, err := m.Login(context.Background(), func(DeviceCode) { close(prompted) })
		first <- err
	}()
	<-prompted

	server.only.Store("dev-2")
	if _, err := m.Login(context.Background(), nil); err != nil {
		t.Fatalf("second Login() error = %v", err)
	}

	select {
	case err := <-first:
		if !errors.Is(err, ErrLoginCancelled) {
			t.Errorf("first Login() error = %v, want ErrLoginCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first Login() was not cancelled")
	}
}

func TestMicrosoftCachedRefreshes(t *testing.T) {
	keyring.MockInit()
	server := newOAuthServer(t)
	m := NewMicrosoft("client", server.endpoint(), nil)

	expired := &oauth2.Token{AccessToken: "old", RefreshToken: "r1", Expiry: time.Now().Add(-time.Hour)}
	if err := saveToken(expired); err != nil {
		t.Fatal(err)
	}

	creds, err := m.Cached(context.Background())
	if err != nil {
		t.Fatalf("Cached() error = %v", err)
	}
	if creds.AccessToken != "refreshed" {
		t.Errorf("Cached() = %+v, want refreshed token", creds)
	}

	stored, err := loadToken()
	if err != nil {
		t.Fatal(err)
	}
	if stored.AccessToken != "refreshed" || stored.RefreshToken != "r2" {
		t.Errorf("stored token = %+v", stored)
	}
}
