package pigeon

import (
	"os"
	"time"
)

// RunState is the small record written at clean shutdown and read at the
// next startup to report why the previous run ended.
type RunState struct {
	// Signal names the shutdown trigger, e.g. "SIGTERM".
	Signal string `json:"signal"`
	// UptimeSeconds is how long the previous process ran.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// StoppedAt is the shutdown timestamp (ms).
	StoppedAt int64 `json:"stopped_at"`
}

// WriteRunState persists the shutdown record. Failures are returned so the
// caller can log them; they never block shutdown.
func WriteRunState(path, signal string, uptime time.Duration) error {
	var enc Encoder = &JSONEncoder{}
	data, err := enc.Encode(RunState{
		Signal:        signal,
		UptimeSeconds: int64(uptime.Seconds()),
		StoppedAt:     time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadRunState loads the previous shutdown record and removes the file so a
// crash before the next clean shutdown reads as unknown. Absence or
// corruption is non-fatal: ok is false and the caller reports "unknown".
func ReadRunState(path string) (RunState, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RunState{}, false
	}
	_ = os.Remove(path)

	var enc Encoder = &JSONEncoder{}
	var st RunState
	if err := enc.Decode(data, &st); err != nil || st.Signal == "" {
		return RunState{}, false
	}
	return st, true
}
