package trigger

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/GoCodeAlone/hotswap"
)

const connectTimeout = 15 * time.Second

// SocketNotifier listens to a dev server announcing builds. The server
// sends "hash" with the new build hash, then "ok" (or "still-ok") once the
// build is done; a check runs when the announced hash differs from the
// runtime's.
type SocketNotifier struct {
	baseURL string
	path    string
	check   CheckFunc
	current func() string
	logger  hotswap.Logger

	mu       sync.Mutex
	lastHash string
	client   *socket.Socket
}

// NewSocketNotifier creates a notifier for rawURL. path is the socket.io
// endpoint path; current reports the runtime's hash.
func NewSocketNotifier(rawURL, path string, check CheckFunc, current func() string, logger hotswap.Logger) (*SocketNotifier, error) {
	if check == nil || current == nil {
		return nil, ErrNilCheck
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("socket URL %q must be absolute", rawURL)
	}
	if path == "" {
		path = "/socket.io/"
	}
	if logger == nil {
		logger = hotswap.NopLogger()
	}
	return &SocketNotifier{
		baseURL: fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		path:    path,
		check:   check,
		current: current,
		logger:  logger,
	}, nil
}

// Start connects and waits for the connection to be established.
func (n *SocketNotifier) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.client != nil {
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.mu.Unlock()

	opts := socket.DefaultOptions()
	opts.SetPath(n.path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(n.baseURL, opts)
	io := manager.Socket("/", opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		select {
		case connected <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})
	for _, event := range []string{"hash", "ok", "still-ok", "invalid", "errors", "warnings"} {
		io.On(types.EventName(event), func(args ...any) {
			n.handleMessage(ctx, event, args...)
		})
	}

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return ctx.Err()
	case <-time.After(connectTimeout):
		io.Disconnect()
		return ErrConnectTimeout
	}

	n.mu.Lock()
	n.client = io
	n.mu.Unlock()
	n.logger.Info("Connected to dev server", "url", n.baseURL, "sid", io.Id())
	return nil
}

// Stop disconnects.
func (n *SocketNotifier) Stop() error {
	n.mu.Lock()
	io := n.client
	n.client = nil
	n.mu.Unlock()
	if io != nil {
		io.Disconnect()
	}
	return nil
}

func (n *SocketNotifier) handleMessage(ctx context.Context, event string, args ...any) {
	switch event {
	case "hash":
		if len(args) == 0 {
			return
		}
		hash, ok := args[0].(string)
		if !ok {
			n.logger.Warn("Ignoring malformed hash message", "value", args[0])
			return
		}
		n.mu.Lock()
		n.lastHash = hash
		n.mu.Unlock()
	case "ok", "still-ok":
		n.mu.Lock()
		hash := n.lastHash
		n.mu.Unlock()
		if hash == "" || hash == n.current() {
			n.logger.Debug("Runtime is up to date", "hash", hash)
			return
		}
		if err := n.check(ctx); err != nil {
			n.logger.Error("Update check failed", "hash", hash, "error", err)
		}
	case "invalid":
		n.logger.Debug("Dev server is rebuilding")
	case "errors", "warnings":
		n.logger.Warn("Dev server reported build "+event, "details", args)
	}
}
