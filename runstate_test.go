package pigeon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunState_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runstate.json")

	require.NoError(t, WriteRunState(path, "SIGTERM", 90*time.Second))

	st, ok := ReadRunState(path)
	require.True(t, ok)
	require.Equal(t, "SIGTERM", st.Signal)
	require.Equal(t, int64(90), st.UptimeSeconds)
	require.NotZero(t, st.StoppedAt)

	// The record is consumed on read, so an unclean next run reads unknown.
	_, ok = ReadRunState(path)
	require.False(t, ok)
}

func TestRunState_MissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	_, ok := ReadRunState(filepath.Join(dir, "absent.json"))
	require.False(t, ok)

	corrupt := filepath.Join(dir, "runstate.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("###"), 0o644))
	_, ok = ReadRunState(corrupt)
	require.False(t, ok)
}
