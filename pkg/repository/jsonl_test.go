package repository_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/triagent/pkg/model"
	"github.com/m-mizutani/triagent/pkg/repository"
)

func record(patientID model.PatientID, tier model.Tier, at time.Time) *model.DecisionRecord {
	return &model.DecisionRecord{
		ID:              model.NewDecisionID(),
		PatientID:       patientID,
		Tier:            tier,
		RecommendedUnit: "er",
		Justification:   "test",
		ClassifierUsed:  model.ClassifierFallback,
		DecidedAt:       at,
	}
}

func TestJSONLAppendAndList(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")

	log, err := repository.NewJSONL(path)
	gt.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gt.NoError(t, log.Append(ctx, record("P1", 4, base)))
	gt.NoError(t, log.Append(ctx, record("P2", 1, base.Add(time.Second))))

	records, err := log.List(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(records), 2)
	gt.Equal(t, records[0].PatientID, model.PatientID("P1"))
	gt.Equal(t, records[1].PatientID, model.PatientID("P2"))
	gt.Equal(t, records[1].Tier, model.TierCritical)

	// Append order is the log's natural order, no reordering
	gt.True(t, records[0].DecidedAt.Before(records[1].DecidedAt))

	gt.NoError(t, log.Close(ctx))
}

func TestJSONLReaderDoesNotBlockWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")

	log, err := repository.NewJSONL(path)
	gt.NoError(t, err)

	gt.NoError(t, log.Append(ctx, record("P1", 3, time.Now())))

	// List while the writer handle is still open
	records, err := log.List(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(records), 1)

	gt.NoError(t, log.Append(ctx, record("P2", 3, time.Now())))
	records, err = log.List(ctx)
	gt.NoError(t, err)
	gt.Equal(t, len(records), 2)

	gt.NoError(t, log.Close(ctx))
}

// Mock Storage
type mockStorage struct {
	objects map[string]*bytes.Buffer
}

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func (m *mockStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	buf := &bytes.Buffer{}
	m.objects[key] = buf
	return nopCloser{buf}, nil
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key].Bytes())), nil
}

func TestJSONLMirrorOnClose(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	storage := &mockStorage{objects: map[string]*bytes.Buffer{}}

	log, err := repository.NewJSONL(path, repository.WithMirror(storage, "decisions/test.jsonl"))
	gt.NoError(t, err)

	gt.NoError(t, log.Append(ctx, record("P1", 2, time.Now())))
	gt.NoError(t, log.Close(ctx))

	mirrored, ok := storage.objects["decisions/test.jsonl"]
	gt.True(t, ok)
	gt.True(t, bytes.Contains(mirrored.Bytes(), []byte(`"patient_id":"P1"`)))
}
