package nut

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	gonut "github.com/robbiet480/go.nut"

	"github.com/sweeney/sensor-dashboard/internal/config"
)

// ErrUPSNotFound means upsd answered but does not know the configured UPS.
var ErrUPSNotFound = errors.New("UPS not found in upsd")

// session is one authenticated upsd connection.
type session interface {
	Variables(ups string) ([]Variable, error)
	Close() error
}

type dialFunc func(cfg config.NUTConfig) (session, error)

// Client implements Poller over a single upsd connection. A failed fetch
// drops the connection and the next Poll dials again. Calls are serialised.
type Client struct {
	cfg  config.NUTConfig
	dial dialFunc

	mu   sync.Mutex
	sess session
}

// NewClient dials upsd and returns a ready Client, or an error if the
// initial connection fails.
func NewClient(cfg config.NUTConfig) (*Client, error) {
	c := NewLazyClient(cfg)
	if err := c.redial(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewLazyClient returns a Client that dials upsd on its first Poll, for
// daemons that are not up yet.
func NewLazyClient(cfg config.NUTConfig) *Client {
	return &Client{cfg: cfg, dial: dialUpsd}
}

func (c *Client) redial() error {
	sess, err := c.dial(c.cfg)
	if err != nil {
		return err
	}
	c.sess = sess
	return nil
}

func (c *Client) drop() {
	if c.sess != nil {
		_ = c.sess.Close()
		c.sess = nil
	}
}

// Poll fetches the current variable set of the configured UPS. go.nut has
// no deadline support, so ctx is only checked before any network I/O.
func (c *Client) Poll(ctx context.Context) ([]Variable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.sess == nil {
		if err := c.redial(); err != nil {
			return nil, err
		}
	}
	vars, err := c.sess.Variables(c.cfg.UPSName)
	if err != nil {
		// The connection is fine when upsd merely lacks the UPS.
		if !errors.Is(err, ErrUPSNotFound) {
			c.drop()
		}
		return nil, err
	}
	return vars, nil
}

// Close disconnects from upsd.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return nil
	}
	err := c.sess.Close()
	c.sess = nil
	return err
}

// upsdSession is a live go.nut connection.
type upsdSession struct {
	conn gonut.Client
}

func dialUpsd(cfg config.NUTConfig) (session, error) {
	conn, err := gonut.Connect(cfg.Host, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("connecting to NUT at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	if cfg.Username != "" {
		if _, err := conn.Authenticate(cfg.Username, cfg.Password); err != nil {
			_, _ = conn.Disconnect()
			return nil, fmt.Errorf("authenticating with NUT as %q: %w", cfg.Username, err)
		}
	}
	return &upsdSession{conn: conn}, nil
}

func (s *upsdSession) Variables(name string) ([]Variable, error) {
	list, err := s.conn.GetUPSList()
	if err != nil {
		return nil, fmt.Errorf("listing UPS: %w", err)
	}
	for i := range list {
		ups := &list[i]
		if ups.Name != name {
			continue
		}
		raw, err := ups.GetVariables()
		if err != nil {
			return nil, fmt.Errorf("getting variables for %q: %w", name, err)
		}
		vars := make([]Variable, len(raw))
		for j, v := range raw {
			vars[j] = Variable{Name: v.Name, Value: formatValue(v.Value)}
		}
		return vars, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUPSNotFound, name)
}

func (s *upsdSession) Close() error {
	_, err := s.conn.Disconnect()
	return err
}

// formatValue renders a go.nut value, which arrives as int64, float64, bool
// or string. Floats never use exponent notation.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
