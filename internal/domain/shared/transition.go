package shared

import "fmt"

// TransitionTable is an immutable from -> allowed-targets map for a status
// type. Build it once with NewTransitionTable and only read from it.
type TransitionTable[S ~string] struct {
	name  string
	edges map[S]map[S]struct{}
}

// NewTransitionTable copies edges into a fresh table. Statuses that appear only
// as targets are terminal.
func NewTransitionTable[S ~string](name string, edges map[S][]S) TransitionTable[S] {
	t := TransitionTable[S]{name: name, edges: make(map[S]map[S]struct{}, len(edges))}
	for from, targets := range edges {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		t.edges[from] = set
	}
	return t
}

// Allows reports whether from -> to is in the table.
func (t TransitionTable[S]) Allows(from, to S) bool {
	_, ok := t.edges[from][to]
	return ok
}

// Check returns an INVALID_TRANSITION error when from -> to is not allowed.
func (t TransitionTable[S]) Check(from, to S) error {
	if t.Allows(from, to) {
		return nil
	}
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("Cannot transition %s from %s to %s", t.name, from, to))
}

// IsTerminal reports whether from has no outgoing transitions.
func (t TransitionTable[S]) IsTerminal(from S) bool {
	return len(t.edges[from]) == 0
}

// Targets returns the allowed targets of from.
func (t TransitionTable[S]) Targets(from S) []S {
	out := make([]S, 0, len(t.edges[from]))
	for to := range t.edges[from] {
		out = append(out, to)
	}
	return out
}
