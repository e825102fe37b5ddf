package ogn

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/ogn-tracker/internal/spatial"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

func TestBuildFilter(t *testing.T) {
	regions := []spatial.Region{
		{Name: "Denmark", Center: spatial.Point{Lat: 55.923624, Lon: 9.755859}, RadiusKm: 195},
		{Name: "Frankfurt", Center: spatial.Point{Lat: 50.1109, Lon: 8.6821}, RadiusKm: 100},
	}

	assert.Equal(t, "r/55.923624/9.755859/195 r/50.1109/8.6821/100", BuildFilter(regions, ""))
	assert.Equal(t, "r/55.923624/9.755859/195 r/50.1109/8.6821/100 t/o", BuildFilter(regions, " t/o "))
}

func TestLoginLine(t *testing.T) {
	c := NewClient(ClientOptions{
		User:       "N0CALL",
		Passcode:   "-1",
		AppName:    "ogn-tracker",
		AppVersion: "1.0",
		Filter:     "r/55.9/9.7/195",
	}, logger.NewNop())

	assert.Equal(t, "user N0CALL pass -1 vers ogn-tracker 1.0 filter r/55.9/9.7/195\r\n", c.LoginLine())
}

// fakeFeed accepts connections and runs serve for each of them in turn
func fakeFeed(t *testing.T, serve ...func(conn net.Conn, r *bufio.Reader)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for _, s := range serve {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s(conn, bufio.NewReader(conn))
		}
	}()
	return ln.Addr().String()
}

func TestClientReconnects(t *testing.T) {
	logins := make(chan string, 2)
	release := make(chan struct{})

	addr := fakeFeed(t,
		func(conn net.Conn, r *bufio.Reader) {
			login, _ := r.ReadString('\n')
			logins <- login
			conn.Write([]byte("# aprsc 2.1.14\r\nline-1\r\n"))
			conn.Close()
		},
		func(conn net.Conn, r *bufio.Reader) {
			login, _ := r.ReadString('\n')
			logins <- login
			conn.Write([]byte("line-2\r\n"))
			<-release
			conn.Close()
		},
	)
	defer close(release)

	c := NewClient(ClientOptions{
		Server:       addr,
		User:         "N0CALL",
		Passcode:     "-1",
		AppName:      "test",
		AppVersion:   "0",
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	}, logger.NewNop())

	lines := make(chan string, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(line string, _ time.Time) { lines <- line })
	}()

	var got []string
	for len(got) < 3 {
		select {
		case l := <-lines:
			got = append(got, l)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{"# aprsc 2.1.14", "line-1", "line-2"}, got)
	assert.Len(t, logins, 2)
	assert.Contains(t, <-logins, "user N0CALL pass -1 vers test 0")

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientKeepalive(t *testing.T) {
	keepalive := make(chan string, 1)
	addr := fakeFeed(t, func(conn net.Conn, r *bufio.Reader) {
		defer conn.Close()
		r.ReadString('\n')
		line, _ := r.ReadString('\n')
		keepalive <- line
	})

	c := NewClient(ClientOptions{
		Server:       addr,
		Keepalive:    20 * time.Millisecond,
		ReconnectMin: time.Second,
	}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx, func(string, time.Time) {})

	select {
	case line := <-keepalive:
		assert.Equal(t, "#keepalive\r\n", line)
	case <-time.After(5 * time.Second):
		t.Fatal("no keepalive received")
	}
}
