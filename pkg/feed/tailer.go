package feed

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Tailer follows a line-oriented feed file, emitting each non-empty line.
// The file may not exist yet when Run starts; the tailer waits for it.
type Tailer struct {
	path     string
	interval time.Duration
	fromEnd  bool
}

type TailerOption func(*Tailer)

// WithInterval sets the poll interval for new data
func WithInterval(d time.Duration) TailerOption {
	return func(t *Tailer) {
		t.interval = d
	}
}

// WithFromEnd starts at the end of the file instead of replaying history
func WithFromEnd() TailerOption {
	return func(t *Tailer) {
		t.fromEnd = true
	}
}

// NewTailer creates a Tailer for path
func NewTailer(path string, opts ...TailerOption) *Tailer {
	t := &Tailer{
		path:     path,
		interval: time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run reads lines and passes them to handle until ctx is cancelled. A handle
// error stops the tailer; handlers that want to skip bad lines must absorb
// the failure themselves.
func (t *Tailer) Run(ctx context.Context, handle func(line []byte) error) error {
	f, err := t.open(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	if t.fromEnd {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return goerr.Wrap(err, "failed to seek feed file", goerr.V("path", t.path))
		}
	}

	r := bufio.NewReader(f)
	var partial strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			// Keep an incomplete trailing line until the writer finishes it
			partial.WriteString(line)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.interval):
			}
			continue
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read feed file", goerr.V("path", t.path))
		}

		full := partial.String() + line
		partial.Reset()
		if trimmed := strings.TrimSpace(full); trimmed != "" {
			if err := handle([]byte(trimmed)); err != nil {
				return err
			}
		}
	}
}

func (t *Tailer) open(ctx context.Context) (*os.File, error) {
	for {
		f, err := os.Open(t.path)
		if err == nil {
			return f, nil
		}
		if !os.IsNotExist(err) {
			return nil, goerr.Wrap(err, "failed to open feed file", goerr.V("path", t.path))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.interval):
		}
	}
}

// DocumentWatcher re-reads a whole document when its modification time
// changes. Used for the guidelines feed, which is replaced atomically as a
// file rather than appended to.
type DocumentWatcher struct {
	path     string
	interval time.Duration
}

// NewDocumentWatcher creates a DocumentWatcher for path
func NewDocumentWatcher(path string, opts ...TailerOption) *DocumentWatcher {
	t := &Tailer{interval: time.Second}
	for _, opt := range opts {
		opt(t)
	}
	return &DocumentWatcher{path: path, interval: t.interval}
}

// Run calls handle with the document body and its modification time, once at
// start and again whenever the file changes, until ctx is cancelled.
func (w *DocumentWatcher) Run(ctx context.Context, handle func(doc string, modAt time.Time) error) error {
	var lastMod time.Time
	for {
		stat, err := os.Stat(w.path)
		if err == nil && stat.ModTime().After(lastMod) {
			data, err := os.ReadFile(w.path)
			if err != nil {
				return goerr.Wrap(err, "failed to read document", goerr.V("path", w.path))
			}
			lastMod = stat.ModTime()
			if err := handle(string(data), lastMod); err != nil {
				return err
			}
		} else if err != nil && !os.IsNotExist(err) {
			return goerr.Wrap(err, "failed to stat document", goerr.V("path", w.path))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}
}
