package utils

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// MultiLogHandler forwards records to multiple slog handlers.
type MultiLogHandler struct {
	handlers []slog.Handler
}

func NewMultiLogHandler(handlers ...slog.Handler) *MultiLogHandler {
	return &MultiLogHandler{handlers: handlers}
}

func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if e := handler.Handle(ctx, r); e != nil {
				err = e
			}
		}
	}
	return err
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return NewMultiLogHandler(handlers...)
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return NewMultiLogHandler(handlers...)
}

// LineWriter is an io.Writer that prefixes every complete line with a
// sequence number and timestamp before passing it on. Used to capture
// stray stdlib log and panic output into the daemon log file.
type LineWriter struct {
	target io.Writer
	seq    atomic.Uint64
	buf    bytes.Buffer
}

func NewLineWriter(target io.Writer) *LineWriter {
	return &LineWriter{target: target}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	if _, err := w.buf.Write(p); err != nil {
		return 0, err
	}

	written := 0
	scanner := bufio.NewScanner(&w.buf)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		n, err := w.writeLine(scanner.Bytes())
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Close flushes any trailing partial line.
func (w *LineWriter) Close() error {
	rest := w.buf.Bytes()
	if len(rest) == 0 {
		return nil
	}
	_, err := w.writeLine(rest)
	w.buf.Reset()
	return err
}

func (w *LineWriter) writeLine(line []byte) (int, error) {
	prefix := slog.Uint64("line", w.seq.Add(1)).String() + " " +
		slog.String("time", time.Now().Format(time.RFC3339)).String() + " "

	written, err := io.WriteString(w.target, prefix)
	if err != nil {
		return written, err
	}

	n, err := w.target.Write(append(line, '\n'))
	return written + n, err
}
