// Package uri parses firecraft:// links handed to the launcher by the OS.
package uri

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Scheme is the registered custom URI scheme
const Scheme = "firecraft"

// ErrUnsupported is returned for links the launcher does not understand
var ErrUnsupported = errors.New("unsupported link")

// Action is what a link asks the launcher to do
type Action struct {
	Kind string
	// Address is the server to join, host or host:port
	Address string
}

// KindJoin connects to a multiplayer server
const KindJoin = "join"

// Parse reads a firecraft:// link. Only join links carrying an ip are
// accepted; everything else wraps ErrUnsupported.
func Parse(raw string) (Action, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Action{}, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return Action{}, fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}

	// firecraft://join?ip=x parses with "join" as the host, firecraft:join as opaque
	kind := u.Host
	if kind == "" {
		kind = strings.Trim(u.Opaque+u.Path, "/")
	}
	if !strings.EqualFold(kind, KindJoin) {
		return Action{}, fmt.Errorf("%w: action %q", ErrUnsupported, kind)
	}

	addr := strings.TrimSpace(u.Query().Get("ip"))
	if addr == "" {
		return Action{}, fmt.Errorf("%w: missing server address", ErrUnsupported)
	}
	if err := validAddress(addr); err != nil {
		return Action{}, fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return Action{Kind: KindJoin, Address: addr}, nil
}

// Find returns the first firecraft:// argument, as the OS passes links on
// the command line of a second launcher process.
func Find(args []string) (string, bool) {
	prefix := Scheme + ":"
	for _, a := range args {
		if len(a) >= len(prefix) && strings.EqualFold(a[:len(prefix)], prefix) {
			return a, true
		}
	}
	return "", false
}

func validAddress(addr string) error {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	if host == "" || strings.ContainsAny(host, " /\\?#@") {
		return fmt.Errorf("invalid server address %q", addr)
	}
	return nil
}
