// Package graph is a small state-graph runtime: nodes transform a typed state,
// edges fix the order, and a checkpoint is written after every node so a
// thread's state can be read back or resumed later.
package graph

import (
	"context"
	"time"
)

const (
	Start = "__start__"
	End   = "__end__"
)

// DefaultRecursionLimit bounds the number of node executions in one Invoke.
const DefaultRecursionLimit = 25

// NodeFunc receives the current state and returns the updated state.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// EdgeCondition picks the next node id from the state.
type EdgeCondition[S any] func(state S) string

type Node[S any] struct {
	ID string
	Fn NodeFunc[S]
}

// Edge is either static (To) or dynamic (Condition), never both.
type Edge[S any] struct {
	From      string
	To        string
	Condition EdgeCondition[S]
}

type EventType string

const (
	EventNodeStart EventType = "node_start"
	EventNodeEnd   EventType = "node_end"
	EventError     EventType = "error"
	EventCompleted EventType = "completed"
)

// Event is delivered synchronously to the observer during Invoke.
type Event struct {
	Type     EventType
	GraphID  string
	ThreadID string
	RunID    string
	NodeID   string
	Step     int
	Duration time.Duration
	Err      error
	Time     time.Time
}

// Snapshot is a decoded checkpoint.
type Snapshot[S any] struct {
	Values S
	// Found is false when the thread has no checkpoint; Values is then the zero state.
	Found        bool
	CheckpointID string
	RunID        string
	Step         int
	Node         string
	// Next is the node that would run after Node, or "" when the run finished.
	Next      string
	CreatedAt time.Time
}
