package ledger

import "fmt"

// VerifyReport is the outcome of walking the chain.
type VerifyReport struct {
	OK           bool     `json:"ok"`
	Total        int      `json:"total"`
	LastSequence int64    `json:"last_sequence"`
	LastHash     string   `json:"last_hash"`
	Errors       []string `json:"errors,omitempty"`
}

// Verifier checks entries fed to it in sequence order. It keeps only the
// previous entry, so a chain can be verified page by page.
type Verifier struct {
	report  VerifyReport
	prev    *Entry
	started bool
}

// NewVerifier returns a verifier for a chain that starts at the genesis entry.
func NewVerifier() *Verifier {
	return &Verifier{report: VerifyReport{OK: true}}
}

// Add checks e against the previously added entry.
func (v *Verifier) Add(e Entry) {
	v.report.Total++

	switch {
	case !v.started:
		if e.Sequence != 1 {
			v.fail("seq %d: chain does not start at sequence 1", e.Sequence)
		}
		if e.PreviousHash != GenesisHash {
			v.fail("seq %d: first entry previous hash is %q, want %q", e.Sequence, e.PreviousHash, GenesisHash)
		}
	default:
		if e.Sequence != v.prev.Sequence+1 {
			v.fail("seq %d: gap after sequence %d", e.Sequence, v.prev.Sequence)
		}
		if e.PreviousHash != v.prev.Hash {
			v.fail("seq %d: previous hash does not match hash of seq %d", e.Sequence, v.prev.Sequence)
		}
		if !e.Timestamp.After(v.prev.Timestamp) {
			v.fail("seq %d: timestamp not after seq %d", e.Sequence, v.prev.Sequence)
		}
	}

	if got := e.ComputeHash(); got != e.Hash {
		v.fail("seq %d: stored hash does not match recomputed hash", e.Sequence)
	}

	v.started = true
	entry := e
	v.prev = &entry
	v.report.LastSequence = e.Sequence
	v.report.LastHash = e.Hash
}

// Report returns the accumulated result.
func (v *Verifier) Report() VerifyReport {
	r := v.report
	r.Errors = append([]string(nil), v.report.Errors...)
	return r
}

func (v *Verifier) fail(format string, args ...any) {
	v.report.OK = false
	v.report.Errors = append(v.report.Errors, fmt.Sprintf(format, args...))
}

// Verify checks a complete chain held in memory.
func Verify(entries []Entry) VerifyReport {
	v := NewVerifier()
	for _, e := range entries {
		v.Add(e)
	}
	return v.Report()
}
