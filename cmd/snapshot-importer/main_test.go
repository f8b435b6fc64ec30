package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/domain"
)

type fakePublisher struct {
	batches [][]domain.SnapshotSubmission
	err     error
	closed  int
}

func (f *fakePublisher) Close() error {
	f.closed++
	return nil
}

func (f *fakePublisher) Publish(subs []domain.SnapshotSubmission) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]domain.SnapshotSubmission(nil), subs...))
	return nil
}

const input = `{"player_id":"ash","observed_at":"2024-03-01T12:00:00Z","values":{"total_xp":"1000"}}
not json

{"player_id":"misty","observed_at":"2024-03-01T12:00:00Z","source":"ss_ocr","values":{"total_xp":"2000"}}
{"player_id":"brock","values":{"total_xp":"3000"}}
{"player_id":"gary","observed_at":"2024-03-02T12:00:00Z","values":{"badge_travel_km":"12.5"}}
`

func TestImportLines(t *testing.T) {
	p := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sent, skipped, err := importLines(strings.NewReader(input), p, 2, domain.SourceImport, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 2, skipped)

	require.Len(t, p.batches, 2)
	assert.Len(t, p.batches[0], 2)
	assert.Len(t, p.batches[1], 1)
	assert.Equal(t, domain.SourceImport, p.batches[0][0].Source)
	assert.Equal(t, domain.SourceSSOCR, p.batches[0][1].Source)
	assert.Equal(t, "gary", p.batches[1][0].PlayerID)
}

func TestImportLinesPublishFailure(t *testing.T) {
	p := &fakePublisher{err: errors.New("out of brokers")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sent, _, err := importLines(strings.NewReader(input), p, 10, domain.SourceImport, logger)
	assert.Error(t, err)
	assert.Zero(t, sent)
}

func TestRun(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o600))
	cfg := &config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "snapshot-imports"}

	tests := []struct {
		name       string
		input      string
		publishErr error
		openErr    error
		wantErr    bool
		wantOpened bool
	}{
		{name: "imports file", input: path, wantOpened: true},
		{name: "publish failure still closes producer", input: path, publishErr: errors.New("out of brokers"), wantErr: true, wantOpened: true},
		{name: "missing input", input: filepath.Join(t.TempDir(), "missing.jsonl"), wantErr: true},
		{name: "producer unavailable", input: path, openErr: errors.New("no brokers"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePublisher{err: tt.publishErr}
			opened := false
			open := func(*config.KafkaConfig, *slog.Logger) (publishCloser, error) {
				opened = true
				if tt.openErr != nil {
					return nil, tt.openErr
				}
				return p, nil
			}

			err := run(cfg, options{input: tt.input, batchSize: 10, source: domain.SourceImport}, open, logger)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Len(t, p.batches, 1)
				assert.Len(t, p.batches[0], 3)
			}
			if tt.wantOpened {
				assert.Equal(t, 1, p.closed)
			} else {
				assert.Zero(t, p.closed)
			}
			assert.Equal(t, tt.wantOpened || tt.openErr != nil, opened)
		})
	}
}
