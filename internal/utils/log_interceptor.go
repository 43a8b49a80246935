package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor implements io.Writer and prefixes every complete line written to it
// with a sequence number and a timestamp before forwarding it to the target.
// Partial lines are held back until their newline arrives or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending bytes.Buffer
	now     func() time.Time
}

// NewLogInterceptor creates a new LogInterceptor that writes to target.
func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{
		target: target,
		now:    time.Now,
	}
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	var buf bytes.Buffer
	buf.WriteString(slog.Uint64("line", i.seq).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(bytes.TrimSuffix(line, []byte("\r")))
	buf.WriteByte('\n')
	_, err := i.target.Write(buf.Bytes())
	return err
}

// Write implements io.Writer. It always reports len(p) on success; the prefixes
// added to the target are not counted.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := i.pending.Next(idx + 1)
		if err := i.writeLine(line[:idx]); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes a trailing partial line and closes the target when it is a Closer.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	var err error
	if i.pending.Len() > 0 {
		err = i.writeLine(i.pending.Bytes())
		i.pending.Reset()
	}
	if c, ok := i.target.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
