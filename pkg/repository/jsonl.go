package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/triagent/pkg/adapter"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/utils/logging"
)

// JSONLog implements DecisionLog as an append-only line-oriented file, one
// JSON record per line. Downstream readers consume the file directly without
// coordinating with the writer.
type JSONLog struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	mirror adapter.Storage
	key    string
}

type JSONLOption func(*JSONLog)

// WithMirror uploads the log to object storage under key on Close. The local
// file remains the durable sink of record; mirroring is best-effort.
func WithMirror(mirror adapter.Storage, key string) JSONLOption {
	return func(l *JSONLog) {
		l.mirror = mirror
		l.key = key
	}
}

// NewJSONL opens (or creates) an append-only decision log at path
func NewJSONL(path string, opts ...JSONLOption) (*JSONLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "failed to create log directory", goerr.V("dir", dir))
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open decision log", goerr.V("path", path))
	}

	l := &JSONLog{
		path: path,
		file: f,
		key:  "decisions/" + time.Now().UTC().Format("20060102-150405") + ".jsonl",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *JSONLog) Append(ctx context.Context, record *model.DecisionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal decision record", goerr.V("patient_id", record.PatientID))
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(data); err != nil {
		return goerr.Wrap(err, "failed to append decision record", goerr.V("path", l.path))
	}
	if err := l.file.Sync(); err != nil {
		return goerr.Wrap(err, "failed to sync decision log", goerr.V("path", l.path))
	}
	return nil
}

func (l *JSONLog) List(ctx context.Context) ([]*model.DecisionRecord, error) {
	// Read through a separate handle so listing never blocks appends
	f, err := os.Open(l.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open decision log", goerr.V("path", l.path))
	}
	defer f.Close()

	var records []*model.DecisionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r model.DecisionRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, goerr.Wrap(err, "corrupted decision log entry", goerr.V("path", l.path))
		}
		records = append(records, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to scan decision log", goerr.V("path", l.path))
	}
	return records, nil
}

// Close closes the log file and mirrors the segment when configured
func (l *JSONLog) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return goerr.Wrap(err, "failed to close decision log", goerr.V("path", l.path))
	}

	if l.mirror == nil {
		return nil
	}
	if err := l.upload(ctx); err != nil {
		// Mirror failure never invalidates the local log
		logging.From(ctx).Warn("failed to mirror decision log", "error", err, "key", l.key)
	}
	return nil
}

func (l *JSONLog) upload(ctx context.Context) error {
	src, err := os.Open(l.path)
	if err != nil {
		return goerr.Wrap(err, "failed to open log for mirroring", goerr.V("path", l.path))
	}
	defer src.Close()

	w, err := l.mirror.Put(ctx, l.key)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to upload log segment", goerr.V("key", l.key))
	}
	return w.Close()
}
