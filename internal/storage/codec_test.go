package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tangled/internal/model"
)

func TestDecodeRunFixture(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "run_v1.json"))
	require.NoError(t, err)

	run, err := DecodeRun(data)
	require.NoError(t, err)
	assert.Equal(t, "run-fixture-1", run.ID)
	assert.Equal(t, "stick-game", run.Scape)
	assert.Equal(t, uint64(117), run.BestRootID)
	assert.Equal(t, 2026, run.CreatedAtUTC.Year())
}

func TestDecodeRejectsOtherVersions(t *testing.T) {
	run := model.RunRecord{VersionedRecord: model.VersionedRecord{SchemaVersion: 2, CodecVersion: 1}, ID: "r"}
	data, err := EncodeRun(run)
	require.NoError(t, err)
	_, err = DecodeRun(data)
	require.ErrorIs(t, err, ErrVersionMismatch)

	data, err = EncodeGraphSnapshot(model.GraphSnapshot{RunID: "r"})
	require.NoError(t, err)
	_, err = DecodeGraphSnapshot(data)
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestGraphSnapshotCodecRoundTrip(t *testing.T) {
	snap := sampleSnapshot("run-1")
	data, err := EncodeGraphSnapshot(snap)
	require.NoError(t, err)
	decoded, err := DecodeGraphSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}
