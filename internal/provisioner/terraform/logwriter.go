package terraform

import (
	"bytes"
	"sync"

	"go.uber.org/zap"
)

// maxLine bounds a single buffered line; longer lines are split.
const maxLine = 64 * 1024

// lineWriter logs each complete line written to it.
type lineWriter struct {
	mu      sync.Mutex
	log     *zap.Logger
	stream  string
	command string
	buf     []byte
}

func newLineWriter(log *zap.Logger, stream string) *lineWriter {
	return &lineWriter{log: log, stream: stream}
}

func (w *lineWriter) setCommand(command string) {
	w.mu.Lock()
	w.command = command
	w.mu.Unlock()
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLine {
		w.emit(w.buf)
		w.buf = nil
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.log.Info(string(line), zap.String("stream", w.stream), zap.String("command", w.command))
}
