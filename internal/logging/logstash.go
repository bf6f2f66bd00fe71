package logging

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

var errCoolingDown = errors.New("logstash: waiting before reconnect")

// LogstashWriter mirrors newline-delimited log records to a Logstash TCP
// input. Records are dropped while the input is unreachable; a failed dial or
// write starts a cool-down before the next connection attempt.
type LogstashWriter struct {
	addr         string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	cooldown     time.Duration
	dial         func(network, addr string, timeout time.Duration) (net.Conn, error)

	mu      sync.Mutex
	conn    net.Conn
	retryAt time.Time
	closed  bool
	dropped int
}

// Option configures a LogstashWriter
type Option func(*LogstashWriter)

// WithDialTimeout sets the connect timeout (default 2s)
func WithDialTimeout(d time.Duration) Option {
	return func(w *LogstashWriter) { w.dialTimeout = d }
}

// WithWriteTimeout sets the per-record write deadline (default 1s)
func WithWriteTimeout(d time.Duration) Option {
	return func(w *LogstashWriter) { w.writeTimeout = d }
}

// WithRetryInterval sets the cool-down after a failure (default 5s)
func WithRetryInterval(d time.Duration) Option {
	return func(w *LogstashWriter) { w.cooldown = d }
}

// NewLogstashWriter creates a writer for addr ("host:port"). No connection is
// made until the first record.
func NewLogstashWriter(addr string, opts ...Option) (*LogstashWriter, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("logstash: empty address")
	}
	w := &LogstashWriter{
		addr:         addr,
		dialTimeout:  2 * time.Second,
		writeTimeout: time.Second,
		cooldown:     5 * time.Second,
		dial:         net.DialTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write forwards one record. It reports success even when the record was
// dropped so that logging never fails the migration.
func (w *LogstashWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	line := make([]byte, len(p), len(p)+1)
	copy(line, p)
	if line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, io.ErrClosedPipe
	}
	if err := w.connectLocked(); err != nil {
		w.dropped++
		return len(p), nil
	}
	if w.writeTimeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	}
	if _, err := w.conn.Write(line); err != nil {
		w.dropped++
		w.resetLocked()
	}
	return len(p), nil
}

// Dropped returns how many records could not be delivered
func (w *LogstashWriter) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

// Close closes the connection; later writes fail
func (w *LogstashWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *LogstashWriter) connectLocked() error {
	if w.conn != nil {
		return nil
	}
	if time.Now().Before(w.retryAt) {
		return errCoolingDown
	}
	conn, err := w.dial("tcp", w.addr, w.dialTimeout)
	if err != nil {
		w.retryAt = time.Now().Add(w.cooldown)
		return err
	}
	w.conn = conn
	w.retryAt = time.Time{}
	return nil
}

func (w *LogstashWriter) resetLocked() {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.retryAt = time.Now().Add(w.cooldown)
}
