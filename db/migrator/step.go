package migrator

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Statement is a single raw statement with optional bound parameters.
type Statement struct {
	SQL  string
	Args []any
}

// SQL is a shorthand for creating statements without parameters.
func SQL(stmts ...string) []Statement {
	out := make([]Statement, len(stmts))
	for i, s := range stmts {
		out[i] = Statement{SQL: s}
	}
	return out
}

// Step transforms a store from version From to version To, where To is always
// From+1.
type Step struct {
	From       int
	To         int
	Name       string
	Statements []Statement
}

func (s *Step) String() string {
	return fmt.Sprintf("%d->%d %s", s.From, s.To, s.Name)
}

// Checksum returns a fingerprint of the step's statements. Whitespace outside
// of quoted text doesn't affect it, so reformatting a step keeps the checksum
// stable, while changing what it does doesn't.
func (s *Step) Checksum() string {
	return checksum(s.Statements)
}

func checksum(stmts []Statement) string {
	h, _ := blake2b.New256(nil)
	for _, st := range stmts {
		writeField(h, normalizeSQL(st.SQL))
		writeField(h, fmt.Sprintf("%d", len(st.Args)))
		for _, arg := range st.Args {
			writeField(h, fmt.Sprintf("%T:%v", arg, arg))
		}
	}
	return base58.Encode(h.Sum(nil))
}

// writeField writes s prefixed with its length, so that adjacent fields can't
// run into each other.
func writeField(w io.Writer, s string) {
	fmt.Fprintf(w, "%d:%s", len(s), s)
}

// normalizeSQL collapses runs of whitespace into a single space, and trims it
// from both ends. Quoted strings and identifiers are kept as written.
func normalizeSQL(sql string) string {
	var (
		b     strings.Builder
		quote rune
		space bool
	)
	for _, r := range sql {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case unicode.IsSpace(r):
			space = true
			continue
		case r == '\'' || r == '"' || r == '`':
			quote = r
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}

	return b.String()
}

// Registry holds the complete set of steps known to the program, the target
// version, and the statements that create a fresh store directly at the target
// version.
type Registry struct {
	target int
	schema []Statement
	steps  map[int]*Step
}

// NewRegistry validates the steps and returns a new registry.
func NewRegistry(target int, schema []Statement, steps ...*Step) (*Registry, error) {
	if target < 1 {
		return nil, fmt.Errorf("invalid target version %d: must be at least 1", target)
	}

	r := &Registry{target: target, schema: schema, steps: make(map[int]*Step, len(steps))}
	for _, s := range steps {
		switch {
		case s.From < 1:
			return nil, fmt.Errorf("invalid step %s: start version must be at least 1", s)
		case s.To != s.From+1:
			return nil, fmt.Errorf("invalid step %s: versions must be adjacent", s)
		case s.To > target:
			return nil, fmt.Errorf("invalid step %s: end version is past the target version %d", s, target)
		}
		if _, ok := r.steps[s.From]; ok {
			return nil, fmt.Errorf("duplicate step from version %d", s.From)
		}
		r.steps[s.From] = s
	}

	return r, nil
}

// Target returns the version the registry migrates to.
func (r *Registry) Target() int {
	return r.target
}

// Schema returns the statements that create a store at the target version.
func (r *Registry) Schema() []Statement {
	return r.schema
}

// SchemaChecksum returns the fingerprint of the bootstrap schema.
func (r *Registry) SchemaChecksum() string {
	return checksum(r.schema)
}

// Step returns the step starting at version from, if one is registered.
func (r *Registry) Step(from int) (*Step, bool) {
	s, ok := r.steps[from]
	return s, ok
}

// Steps returns all registered steps in ascending order.
func (r *Registry) Steps() []*Step {
	steps := make([]*Step, 0, len(r.steps))
	for _, s := range r.steps {
		steps = append(steps, s)
	}
	slices.SortFunc(steps, func(a, b *Step) int { return a.From - b.From })
	return steps
}

// Plan returns the contiguous chain of steps leading from version from to the
// target version. It returns an error if the chain has a gap, or if from is
// negative or past the target version. A from value of 0 denotes a fresh store,
// which needs no steps.
func (r *Registry) Plan(from int) ([]*Step, error) {
	if from < 0 {
		return nil, InvalidVersionError{Version: from}
	}
	if from > r.target {
		return nil, UnsupportedDowngradeError{OnDisk: from, Target: r.target}
	}
	if from == 0 {
		return nil, nil
	}

	plan := make([]*Step, 0, r.target-from)
	for v := from; v < r.target; v++ {
		s, ok := r.steps[v]
		if !ok {
			return nil, MissingStepError{From: v, To: v + 1}
		}
		plan = append(plan, s)
	}

	return plan, nil
}
