package pigeon

import (
	"fmt"
	"strings"
)

// Memory tool actions. A single tool multiplexes the memory operations by
// this string tag.
const (
	MemoryActionRead     = "read"
	MemoryActionReadWeek = "read_week"
	MemoryActionAppend   = "append"
	MemoryActionList     = "list"
)

// MemoryOp is the tagged-variant payload of the memory tool.
type MemoryOp struct {
	// Action selects the operation: read, read_week, append or list.
	Action string `json:"action"`
	// Week names the target week for read_week.
	Week string `json:"week,omitempty"`
	// Content is the entry text for append.
	Content string `json:"content,omitempty"`
}

// Toolkit is the capability surface exposed to the agents. Every method
// returns a short human-readable text result and never propagates an error
// past this boundary; failures come back as error text so the agent can
// retry or report.
type Toolkit struct {
	memory  *Memory
	store   *Store
	encoder Encoder
	log     Logger
}

// NewToolkit wires the tool surface over the shared memory and task store.
func NewToolkit(memory *Memory, store *Store, log Logger) *Toolkit {
	if log == nil {
		log = NewFmtLogger()
	}
	return &Toolkit{memory: memory, store: store, encoder: &JSONEncoder{}, log: log}
}

// MemoryTool decodes a raw MemoryOp payload, validates the variant and
// dispatches it. Unknown actions and malformed payloads yield error text,
// not a crash.
func (tk *Toolkit) MemoryTool(raw []byte) string {
	var op MemoryOp
	if err := tk.encoder.Decode(raw, &op); err != nil {
		return fmt.Sprintf("error: malformed memory payload: %v", err)
	}
	return tk.Memory(op)
}

// Memory dispatches a decoded memory operation.
func (tk *Toolkit) Memory(op MemoryOp) string {
	switch op.Action {
	case MemoryActionRead:
		content, err := tk.memory.ReadCurrent()
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		if content == "" {
			return "(no memory recorded for " + tk.memory.CurrentWeekID() + " yet)"
		}
		return content
	case MemoryActionReadWeek:
		if op.Week == "" {
			return "error: read_week requires a week id like 2026-W07"
		}
		content, err := tk.memory.Read(op.Week)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		if content == "" {
			return "(no memory recorded for " + op.Week + ")"
		}
		return content
	case MemoryActionAppend:
		if strings.TrimSpace(op.Content) == "" {
			return "error: append requires non-empty content"
		}
		if err := tk.memory.Append(op.Content); err != nil {
			tk.log.Warnf("tools: memory append failed: %v", err)
			return fmt.Sprintf("error: %v", err)
		}
		return "noted in " + tk.memory.CurrentWeekID()
	case MemoryActionList:
		weeks, err := tk.memory.Weeks()
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		if len(weeks) == 0 {
			return "(no memory weeks yet)"
		}
		return strings.Join(weeks, "\n")
	default:
		return fmt.Sprintf("error: unknown memory action %q", op.Action)
	}
}

// EnqueueTask adds a pending task with the given self-contained description
// and confirms with the new id.
func (tk *Toolkit) EnqueueTask(description string) string {
	if strings.TrimSpace(description) == "" {
		return "error: task description must not be empty"
	}
	task, err := tk.store.Add(description)
	if err != nil {
		tk.log.Warnf("tools: enqueue failed: %v", err)
		return fmt.Sprintf("error: %v", err)
	}
	return fmt.Sprintf("queued task %s", task.ID)
}
