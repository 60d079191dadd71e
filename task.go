package pigeon

// Task represents a unit of deferred work owned by the Store.
// It is serialized to JSON as part of the store's backing file.
type Task struct {
	// ID is the unique identifier for the task, stable for its lifetime.
	ID string `json:"id"`
	// Description is the self-contained work description. The enqueueing
	// agent is responsible for inlining all context the background
	// executor needs.
	Description string `json:"description"`
	// Status is the lifecycle state (pending, running, done, failed).
	Status Status `json:"status"`
	// CreatedAt is the timestamp (ms) when the task was enqueued.
	CreatedAt int64 `json:"created_at"`
	// CompletedAt is the timestamp (ms) when the task reached a final
	// state. Zero while pending or running.
	CompletedAt int64 `json:"completed_at,omitempty"`
	// Result is the execution output. Present iff Status is done.
	Result string `json:"result,omitempty"`
	// Error is the failure message. Present iff Status is failed.
	Error string `json:"error,omitempty"`
}
