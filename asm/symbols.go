package asm

import "github.com/colorfulnotion/feauxviz/feauxerrors"

const unbound = -1

// symbolTable holds the labels found by the pre-scan, in declaration order,
// and the instruction index each one is bound to once compilation reaches it.
type symbolTable struct {
	order   []string
	index   map[string]int
	targets []int
}

func newSymbolTable() *symbolTable {
	return &symbolTable{index: make(map[string]int)}
}

// scan declares every label line. A label may only be declared once.
func (s *symbolTable) scan(lines []sourceLine) error {
	for _, l := range lines {
		if l.kind != lineLabel {
			continue
		}
		if _, dup := s.index[l.label]; dup {
			return &Error{Line: l.num, Token: l.label, Err: feauxerrors.ErrADuplicateLabel}
		}
		s.index[l.label] = len(s.order)
		s.order = append(s.order, l.label)
		s.targets = append(s.targets, unbound)
	}
	return nil
}

// ref returns the label's position in the declaration order.
func (s *symbolTable) ref(label string) (int, bool) {
	i, ok := s.index[label]
	return i, ok
}

func (s *symbolTable) bind(label string, instr int) {
	s.targets[s.index[label]] = instr
}

// boundAt reports whether any label is bound to instruction index instr.
func (s *symbolTable) boundAt(instr int) bool {
	for _, t := range s.targets {
		if t == instr {
			return true
		}
	}
	return false
}

func (s *symbolTable) target(ref int) int {
	return s.targets[ref]
}

func (s *symbolTable) labels() []string {
	return s.order
}
