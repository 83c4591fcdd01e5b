package debugger

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ctagard/glint-ls/internal/lang"
)

// hitCondition decides whether the n-th hit of a breakpoint stops.
// Accepted forms: "N" and ">=N" (from the N-th hit on), "==N", ">N" and
// "%N" (every N-th hit).
type hitCondition struct {
	op string
	n  int
}

func parseHitCondition(s string) (*hitCondition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	op := ">="
	for _, candidate := range []string{">=", "==", ">", "%"} {
		if strings.HasPrefix(s, candidate) {
			op = candidate
			s = strings.TrimSpace(s[len(candidate):])
			break
		}
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || (op == "%" && n == 0) {
		return nil, fmt.Errorf("invalid hit condition %q", s)
	}
	return &hitCondition{op: op, n: n}, nil
}

func (h *hitCondition) match(hits int) bool {
	switch h.op {
	case "==":
		return hits == h.n
	case ">":
		return hits > h.n
	case "%":
		return hits%h.n == 0
	default:
		return hits >= h.n
	}
}

type breakpoint struct {
	id           int
	line         int
	condition    string
	hitCondition string

	cond     lang.Expr
	hit      *hitCondition
	hits     int
	verified bool
}

func (b *breakpoint) sameAs(spec BreakpointSpec) bool {
	return b.line == spec.Line && b.condition == spec.Condition && b.hitCondition == spec.HitCondition
}

// breakpointTable holds the breakpoints of every source, keyed by
// normalized path
type breakpointTable struct {
	mu      sync.Mutex
	nextID  int
	sources map[string]map[int]*breakpoint
}

func newBreakpointTable() *breakpointTable {
	return &breakpointTable{
		nextID:  1,
		sources: make(map[string]map[int]*breakpoint),
	}
}

func normalizePath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// set replaces the breakpoints of source. lines, when non-nil, holds the
// lines that carry a statement; breakpoints elsewhere are rejected.
// Re-sending an unchanged breakpoint keeps its id and hit count.
func (t *breakpointTable) set(source string, specs []BreakpointSpec, lines map[int]bool) []BreakpointStatus {
	key := normalizePath(source)

	t.mu.Lock()
	defer t.mu.Unlock()

	old := t.sources[key]
	next := make(map[int]*breakpoint, len(specs))
	statuses := make([]BreakpointStatus, 0, len(specs))

	for _, spec := range specs {
		status := BreakpointStatus{Line: spec.Line}

		bp := old[spec.Line]
		if bp == nil || !bp.sameAs(spec) {
			bp = &breakpoint{line: spec.Line, condition: spec.Condition, hitCondition: spec.HitCondition}
			if prev := old[spec.Line]; prev != nil {
				bp.id = prev.id
			} else {
				bp.id = t.nextID
				t.nextID++
			}
		}
		status.ID = bp.id
		status.Message = bp.compile(lines)
		bp.verified = status.Message == ""
		status.Verified = bp.verified

		next[spec.Line] = bp
		statuses = append(statuses, status)
	}

	t.sources[key] = next
	return statuses
}

// compile parses the condition and hit condition, returning a message
// when the breakpoint cannot be honoured
func (b *breakpoint) compile(lines map[int]bool) string {
	if b.line < 1 {
		return fmt.Sprintf("invalid line %d", b.line)
	}
	if lines != nil && !lines[b.line] {
		return fmt.Sprintf("no statement on line %d", b.line)
	}
	if strings.TrimSpace(b.condition) != "" && b.cond == nil {
		cond, err := lang.ParseExpr(b.condition)
		if err != nil {
			return fmt.Sprintf("invalid condition: %v", err)
		}
		b.cond = cond
	}
	if b.hitCondition != "" && b.hit == nil {
		hit, err := parseHitCondition(b.hitCondition)
		if err != nil {
			return err.Error()
		}
		b.hit = hit
	}
	return ""
}

// hit records a visit to line of source and reports the breakpoint there.
// condition evaluates a breakpoint condition in the current frame; only
// visits that satisfy it are counted.
func (t *breakpointTable) hit(source string, line int, condition func(lang.Expr) bool) (*breakpoint, bool) {
	t.mu.Lock()
	bp := t.sources[source][line]
	t.mu.Unlock()
	if bp == nil || !bp.verified {
		return nil, false
	}

	// the condition runs user code, so it is evaluated outside the lock
	if bp.cond != nil && !condition(bp.cond) {
		return bp, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	bp.hits++
	if bp.hit != nil && !bp.hit.match(bp.hits) {
		return bp, false
	}
	return bp, true
}

// statementLines collects the lines on which a statement starts
func statementLines(prog *lang.Program) map[int]bool {
	lines := make(map[int]bool)
	var stmts func([]lang.Stmt)
	var expr func(lang.Expr)

	block := func(b *lang.Block) {
		if b != nil {
			stmts(b.Stmts)
		}
	}

	expr = func(x lang.Expr) {
		switch x := x.(type) {
		case *lang.FuncLit:
			block(x.Body)
		case *lang.CallExpr:
			expr(x.Fn)
			for _, a := range x.Args {
				expr(a)
			}
		case *lang.ArrayLit:
			for _, e := range x.Elems {
				expr(e)
			}
		case *lang.RecordLit:
			for _, f := range x.Fields {
				expr(f.Value)
			}
		case *lang.FieldExpr:
			expr(x.X)
		case *lang.IndexExpr:
			expr(x.X)
			expr(x.Index)
		case *lang.UnaryExpr:
			expr(x.X)
		case *lang.BinaryExpr:
			expr(x.X)
			expr(x.Y)
		}
	}

	stmts = func(list []lang.Stmt) {
		for _, s := range list {
			lines[s.Pos().Line] = true
			switch s := s.(type) {
			case *lang.LetStmt:
				expr(s.Value)
			case *lang.FnStmt:
				block(s.Body)
			case *lang.ReturnStmt:
				if s.Value != nil {
					expr(s.Value)
				}
			case *lang.IfStmt:
				expr(s.Cond)
				block(s.Then)
				switch e := s.Else.(type) {
				case *lang.Block:
					block(e)
				case *lang.IfStmt:
					stmts([]lang.Stmt{e})
				}
			case *lang.WhileStmt:
				expr(s.Cond)
				block(s.Body)
			case *lang.AssignStmt:
				expr(s.Value)
			case *lang.ExprStmt:
				expr(s.X)
			case *lang.Block:
				stmts(s.Stmts)
			}
		}
	}

	stmts(prog.Stmts)
	return lines
}
