package ogn

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

// LineHandler receives every line read from the feed together with its
// receive time
type LineHandler func(line string, receivedAt time.Time)

// ClientOptions configures the APRS-IS connection
type ClientOptions struct {
	Server       string
	User         string
	Passcode     string
	AppName      string
	AppVersion   string
	Filter       string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	Keepalive    time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client maintains a long-lived APRS-IS connection and reconnects with
// exponential backoff until its context is cancelled
type Client struct {
	opts   ClientOptions
	dialer net.Dialer
	logger *logger.Logger
}

// NewClient creates a new APRS-IS client
func NewClient(opts ClientOptions, log *logger.Logger) *Client {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Client{
		opts:   opts,
		dialer: net.Dialer{Timeout: opts.DialTimeout},
		logger: log.Named("aprs-client"),
	}
}

// BuildFilter generates the server-side range filter covering every region
func BuildFilter(regions []spatial.Region, extra string) string {
	parts := make([]string, 0, len(regions)+1)
	for _, r := range regions {
		parts = append(parts, fmt.Sprintf("r/%s/%s/%s",
			strconv.FormatFloat(r.Center.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Center.Lon, 'f', -1, 64),
			strconv.FormatFloat(r.RadiusKm, 'f', -1, 64)))
	}
	if extra = strings.TrimSpace(extra); extra != "" {
		parts = append(parts, extra)
	}
	return strings.Join(parts, " ")
}

// LoginLine returns the APRS-IS login command
func (c *Client) LoginLine() string {
	line := fmt.Sprintf("user %s pass %s vers %s %s", c.opts.User, c.opts.Passcode, c.opts.AppName, c.opts.AppVersion)
	if c.opts.Filter != "" {
		line += " filter " + c.opts.Filter
	}
	return line + "\r\n"
}

// Run connects to the feed and hands every line to handler. Disconnects are
// logged and retried forever; Run only returns once ctx is done.
func (c *Client) Run(ctx context.Context, handler LineHandler) error {
	backoff := c.opts.ReconnectMin
	for {
		start := time.Now()
		lines, err := c.session(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A session that delivered data resets the backoff
		if lines > 0 && time.Since(start) > c.opts.ReconnectMin {
			backoff = c.opts.ReconnectMin
		}

		c.logger.Warn("APRS connection lost, reconnecting",
			logger.Error(err),
			logger.Int64("lines", lines),
			logger.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.opts.ReconnectMax {
			backoff = c.opts.ReconnectMax
		}
	}
}

// session runs one connection until it fails and returns the number of lines read
func (c *Client) session(ctx context.Context, handler LineHandler) (int64, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.opts.Server)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to %s: %w", c.opts.Server, err)
	}

	var writeMu sync.Mutex
	write := func(s string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		_, err := conn.Write([]byte(s))
		return err
	}

	if err := write(c.LoginLine()); err != nil {
		conn.Close()
		return 0, fmt.Errorf("failed to send login: %w", err)
	}
	c.logger.Info("Connected to APRS server",
		logger.String("server", c.opts.Server),
		logger.String("filter", c.opts.Filter))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var ticks <-chan time.Time
		if c.opts.Keepalive > 0 {
			ticker := time.NewTicker(c.opts.Keepalive)
			defer ticker.Stop()
			ticks = ticker.C
		}
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticks:
				if err := write("#keepalive\r\n"); err != nil {
					c.logger.Debug("Keepalive failed", logger.Error(err))
					conn.Close()
					return
				}
			}
		}
	}()
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)

	var lines int64
	for {
		if c.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return lines, fmt.Errorf("failed to read from feed: %w", err)
			}
			return lines, fmt.Errorf("connection closed by server")
		}
		lines++
		handler(scanner.Text(), time.Now())
	}
}
