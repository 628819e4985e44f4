package asm

import (
	"fmt"

	"github.com/colorfulnotion/feauxviz/feauxerrors"
)

// Error reports a compilation failure at a source line. Err is one of the
// assembler sentinels in feauxerrors.
type Error struct {
	Line  int
	Token string
	Err   error
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("asm: %s %q", feauxerrors.GetErrorName(e.Err), e.Token)
	}
	return fmt.Sprintf("asm: line %d: %s %q", e.Line, feauxerrors.GetErrorName(e.Err), e.Token)
}

func (e *Error) Unwrap() error {
	return e.Err
}
