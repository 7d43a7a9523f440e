// Package instance keeps a single launcher running per user. The first
// process listens on a loopback port; later ones hand it their link and exit.
package instance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/firemods/firecraft-launcher/internal/logging"
)

// ErrRunning means another launcher already owns the port
var ErrRunning = errors.New("launcher already running")

const (
	hello       = "firecraft-instance"
	dialTimeout = 2 * time.Second
	maxMessage  = 4096
)

// Owner is the primary launcher process
type Owner struct {
	ln     net.Listener
	logger *zap.Logger
	links  chan string
	once   sync.Once
}

// Acquire claims addr. When another launcher holds it, ErrRunning is
// returned and the caller should Forward instead.
func Acquire(addr string, logger *zap.Logger) (*Owner, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if probe(addr) {
			return nil, ErrRunning
		}
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Owner{ln: ln, logger: logging.OrNop(logger), links: make(chan string, 8)}, nil
}

// Links delivers links forwarded by later processes. An empty string means
// the second process had no link and only wants the window raised.
func (o *Owner) Links() <-chan string {
	return o.links
}

// Addr is the address being listened on
func (o *Owner) Addr() string {
	return o.ln.Addr().String()
}

// Serve accepts forwards until ctx is done
func (o *Owner) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		o.Close()
	}()
	defer close(o.links)

	for {
		conn, err := o.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept: %w", err)
		}
		o.handle(ctx, conn)
	}
}

func (o *Owner) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(dialTimeout))

	r := bufio.NewReader(&limitedConn{conn: conn, left: maxMessage})
	line, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != hello {
		return
	}
	fmt.Fprintln(conn, hello)

	link, err := r.ReadString('\n')
	if err != nil && link == "" {
		return
	}
	link = strings.TrimSpace(link)
	o.logger.Info("received link from second instance", zap.String("link", link))
	select {
	case o.links <- link:
	case <-ctx.Done():
	}
}

// Close stops listening
func (o *Owner) Close() error {
	var err error
	o.once.Do(func() { err = o.ln.Close() })
	return err
}

// Forward hands link to the launcher owning addr
func Forward(addr, link string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to reach running launcher: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(dialTimeout))

	if _, err := fmt.Fprintln(conn, hello); err != nil {
		return fmt.Errorf("failed to forward link: %w", err)
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil || strings.TrimSpace(reply) != hello {
		return fmt.Errorf("port %s is held by another program", addr)
	}
	if _, err := fmt.Fprintln(conn, link); err != nil {
		return fmt.Errorf("failed to forward link: %w", err)
	}
	return nil
}

// probe reports whether a launcher answers on addr
func probe(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

type limitedConn struct {
	conn net.Conn
	left int
}

func (l *limitedConn) Read(p []byte) (int, error) {
	if l.left <= 0 {
		return 0, errors.New("message too long")
	}
	if len(p) > l.left {
		p = p[:l.left]
	}
	n, err := l.conn.Read(p)
	l.left -= n
	return n, err
}
