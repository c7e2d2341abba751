package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ExecStatus is the execution status carried in a message's execution context.
type ExecStatus string

const (
	// ExecStatusPending marks a message not yet produced by the executor.
	ExecStatusPending ExecStatus = "pending"
	// ExecStatusSuccess marks a message produced without error.
	ExecStatusSuccess ExecStatus = "success"
	// ExecStatusError marks a message whose production failed.
	ExecStatusError ExecStatus = "error"
)

// OriginParent is the origin value for artifacts defined in the parent runbook.
const OriginParent = "parent"

// ChildOrigin returns the origin value for artifacts flattened out of the
// named child runbook.
func ChildOrigin(runbookName string) string {
	return "child:" + runbookName
}

// ExecutionContext is the execution metadata the executor attaches to a
// message before storing it.
type ExecutionContext struct {
	Status          ExecStatus `msgpack:"status" json:"status"`
	Origin          string     `msgpack:"origin" json:"origin"`
	Alias           string     `msgpack:"alias,omitempty" json:"alias,omitempty"`
	Error           string     `msgpack:"error,omitempty" json:"error,omitempty"`
	DurationSeconds float64    `msgpack:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
}

// Extensions holds message extension records. Only the execution record is
// defined today; the struct leaves room for future extension keys.
type Extensions struct {
	Execution *ExecutionContext `msgpack:"execution,omitempty" json:"execution,omitempty"`
}

// Message carries a schema-tagged content value between components.
// Content is opaque to the engine; only connectors and analysers interpret
// it. Messages are immutable after creation by their producer, except that
// the executor attaches an updated execution context on a copy before
// storing.
type Message struct {
	ID         string     `msgpack:"id" json:"id"`
	Schema     Schema     `msgpack:"schema" json:"schema"`
	Content    any        `msgpack:"content" json:"content"`
	Extensions Extensions `msgpack:"extensions" json:"extensions"`
}

// NewMessage builds a message with a fresh id.
func NewMessage(schema Schema, content any) Message {
	return Message{
		ID:      NewMessageID(),
		Schema:  schema,
		Content: content,
	}
}

// NewMessageID returns a ULID message id, unique within a run and ordered
// by creation time.
func NewMessageID() string {
	return ulid.Make().String()
}

// WithExecution returns a copy of m carrying the given execution context.
func (m Message) WithExecution(ec ExecutionContext) Message {
	out := m
	out.Extensions.Execution = &ec
	return out
}

// Execution returns the execution context, or a pending one if absent.
func (m Message) Execution() ExecutionContext {
	if m.Extensions.Execution != nil {
		return *m.Extensions.Execution
	}
	return ExecutionContext{Status: ExecStatusPending, Origin: OriginParent}
}

// Validate checks the structural invariants of a message.
func (m Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message is missing an id")
	}
	if m.Schema.Name == "" || m.Schema.Version == "" {
		return fmt.Errorf("message %s has incomplete schema %q", m.ID, m.Schema.Ref())
	}
	return nil
}
