package serial

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

// LineConn exchanges console lines with a controller. Requests go out
// terminated with CRLF; replies come back one line at a time.
type LineConn struct {
	port   Port
	mu     sync.Mutex
	closed atomic.Bool
}

// NewLineConn wraps an open port.
func NewLineConn(port Port) *LineConn {
	return &LineConn{port: port}
}

// WriteLine sends one console line.
func (c *LineConn) WriteLine(line string) error {
	line = strings.TrimRight(line, "\r\n")
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.port, line+"\r\n")
	return err
}

// ReadLines calls fn for every reply line until the connection is closed
// or ctx ends. Line endings are stripped.
func (c *LineConn) ReadLines(ctx context.Context, fn func(string)) error {
	r := bufio.NewReader(c.port)
	var line strings.Builder
	for ctx.Err() == nil {
		chunk, err := r.ReadString('\n')
		line.WriteString(chunk)
		switch {
		case err == nil:
			fn(strings.TrimRight(line.String(), "\r\n"))
			line.Reset()
		case c.closed.Load():
			if rest := strings.TrimRight(line.String(), "\r\n"); rest != "" {
				fn(rest)
			}
			return nil
		case err != io.EOF:
			return err
		}
		// tarm/serial reports an expired read timeout as io.EOF.
	}
	return ctx.Err()
}

// Close closes the port and ends ReadLines.
func (c *LineConn) Close() error {
	c.closed.Store(true)
	return c.port.Close()
}
