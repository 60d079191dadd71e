package pigeon

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestToolkit(t *testing.T) (*Toolkit, *Store, *Memory) {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "tasks.json"), NopLogger{})
	memory, err := NewMemory(filepath.Join(dir, "memory"), NopLogger{})
	require.NoError(t, err)
	return NewToolkit(memory, store, NopLogger{}), store, memory
}

func TestToolkit_MemoryAppendAndRead(t *testing.T) {
	tk, _, mem := newTestToolkit(t)

	out := tk.Memory(MemoryOp{Action: MemoryActionAppend, Content: "met with the landlord"})
	require.Equal(t, "noted in "+mem.CurrentWeekID(), out)

	out = tk.Memory(MemoryOp{Action: MemoryActionRead})
	require.Contains(t, out, "met with the landlord")

	out = tk.Memory(MemoryOp{Action: MemoryActionReadWeek, Week: mem.CurrentWeekID()})
	require.Contains(t, out, "met with the landlord")
}

func TestToolkit_MemoryList(t *testing.T) {
	tk, _, mem := newTestToolkit(t)

	require.Equal(t, "(no memory weeks yet)", tk.Memory(MemoryOp{Action: MemoryActionList}))

	tk.Memory(MemoryOp{Action: MemoryActionAppend, Content: "entry"})
	require.Equal(t, mem.CurrentWeekID(), tk.Memory(MemoryOp{Action: MemoryActionList}))
}

func TestToolkit_MemoryValidation(t *testing.T) {
	tk, _, _ := newTestToolkit(t)

	require.Contains(t, tk.Memory(MemoryOp{Action: "explode"}), `unknown memory action "explode"`)
	require.Contains(t, tk.Memory(MemoryOp{Action: MemoryActionAppend, Content: "  "}), "error:")
	require.Contains(t, tk.Memory(MemoryOp{Action: MemoryActionReadWeek}), "error:")
	require.Contains(t, tk.Memory(MemoryOp{Action: MemoryActionReadWeek, Week: "nope"}), "error:")
}

func TestToolkit_MemoryToolDecoding(t *testing.T) {
	tk, _, mem := newTestToolkit(t)

	out := tk.MemoryTool([]byte(`{"action":"append","content":"from raw json"}`))
	require.Equal(t, "noted in "+mem.CurrentWeekID(), out)

	out = tk.MemoryTool([]byte(`{"action":`))
	require.Contains(t, out, "malformed memory payload")
}

func TestToolkit_MemoryReadEmptyWeek(t *testing.T) {
	tk, _, _ := newTestToolkit(t)
	require.Contains(t, tk.Memory(MemoryOp{Action: MemoryActionRead}), "no memory recorded")
	require.Contains(t, tk.Memory(MemoryOp{Action: MemoryActionReadWeek, Week: "2020-W01"}), "no memory recorded")
}

func TestToolkit_EnqueueTask(t *testing.T) {
	tk, store, _ := newTestToolkit(t)

	out := tk.EnqueueTask("Summarize the attached notes")
	require.Contains(t, out, "queued task ")

	pending := store.List(StatusPending)
	require.Len(t, pending, 1)
	require.Equal(t, "Summarize the attached notes", pending[0].Description)
	require.Contains(t, out, pending[0].ID)

	require.Contains(t, tk.EnqueueTask("   "), "error:")
}
