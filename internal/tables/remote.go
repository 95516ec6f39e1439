package tables

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Mr00Anderson/gdx-pd/internal/audio"
)

// DefaultChunkSize is the number of sample values sent per FUDI message.
const DefaultChunkSize = 512

// Remote is a shared engine running in another process, driven over a TCP
// FUDI connection (Pure Data's [netreceive]).
//
// Messages sent:
//
//	pd dsp 0;                  Pause
//	pd dsp 1;                  Resume
//	<array> <index> v1 v2 ...; WriteArray, one message per chunk
//
// Remote cannot query array sizes: ArraySize always returns
// audio.ErrArraySizeUnavailable, and the scheduler must run in remote mode.
type Remote struct {
	mu     sync.Mutex
	conn   net.Conn
	chunk  int
	wait   time.Duration
	logger *slog.Logger
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithChunkSize sets the sample values per message. Default: 512.
func WithChunkSize(n int) RemoteOption {
	return func(r *Remote) {
		if n > 0 {
			r.chunk = n
		}
	}
}

// WithWriteTimeout bounds each message write. Default: 5s.
func WithWriteTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		r.wait = d
	}
}

// WithRemoteLogger sets the structured logger. Default: slog.Default().
func WithRemoteLogger(l *slog.Logger) RemoteOption {
	return func(r *Remote) {
		r.logger = l
	}
}

// Dial connects to a FUDI endpoint such as "localhost:3000".
func Dial(ctx context.Context, addr string, opts ...RemoteOption) (*Remote, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial remote engine %s: %w", addr, err)
	}
	return NewRemote(conn, opts...), nil
}

// NewRemote wraps an established connection.
func NewRemote(conn net.Conn, opts ...RemoteOption) *Remote {
	r := &Remote{
		conn:   conn,
		chunk:  DefaultChunkSize,
		wait:   5 * time.Second,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Close()
}

// Pause turns DSP off on the remote engine.
func (r *Remote) Pause() error {
	return r.send("pd", "dsp", "0")
}

// Resume turns DSP back on.
func (r *Remote) Resume() error {
	return r.send("pd", "dsp", "1")
}

// ArraySize always fails: FUDI is write-only.
func (r *Remote) ArraySize(name string) (int, error) {
	return 0, audio.ErrArraySizeUnavailable
}

// WriteArray sends buf[bufOffset:bufOffset+length] as indexed list messages.
func (r *Remote) WriteArray(name string, offset int, buf []float32, bufOffset, length int) error {
	if err := checkWrite(offset, buf, bufOffset, length); err != nil {
		return fmt.Errorf("write array %q: %w", name, err)
	}
	if strings.ContainsAny(name, " ;,\n\t") {
		return fmt.Errorf("write array %q: name is not a FUDI atom", name)
	}

	for sent := 0; sent < length; sent += r.chunk {
		n := min(r.chunk, length-sent)
		atoms := make([]string, 0, n+2)
		atoms = append(atoms, name, strconv.Itoa(offset+sent))
		for _, v := range buf[bufOffset+sent : bufOffset+sent+n] {
			atoms = append(atoms, strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		if err := r.send(atoms...); err != nil {
			return fmt.Errorf("write array %q at %d: %w", name, offset+sent, err)
		}
	}
	r.logger.Debug("remote array written", "array", name, "offset", offset, "length", length)
	return nil
}

// send writes one FUDI message: atoms separated by spaces, terminated by ";\n".
func (r *Remote) send(atoms ...string) error {
	msg := strings.Join(atoms, " ") + ";\n"

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.wait > 0 {
		if err := r.conn.SetWriteDeadline(time.Now().Add(r.wait)); err != nil {
			return err
		}
	}
	return writeAll(r.conn, []byte(msg))
}

// writeAll writes the entirety of data to w, returning an error if the
// write fails or is short.
func writeAll(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}
