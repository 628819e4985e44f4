package feauxerrors

import (
	"errors"
	"strings"
)

// Assembler (A) Errors
var (
	ErrAUnknownMnemonic = errors.New("A1|UnknownMnemonic: Instruction line starts with a mnemonic the assembler does not know.")
	ErrAUnknownRegister = errors.New("A2|UnknownRegister: Operand does not name a register.")
	ErrAUnknownLabel    = errors.New("A3|UnknownLabel: Jump target is not declared anywhere in the source.")
	ErrABadOperand      = errors.New("A4|BadOperand: Operand is not a base-10 integer in range.")
	ErrAOperandCount    = errors.New("A5|OperandCount: Mnemonic given the wrong number of operands.")
	ErrADuplicateLabel  = errors.New("A6|DuplicateLabel: Label declared more than once.")
)

// Engine (E) Errors
var (
	ErrEUnknownProgram  = errors.New("E1|UnknownProgram: No program with that name is loaded in the engine.")
	ErrEMissingExport   = errors.New("E2|MissingExport: Engine module does not export a required entry point.")
	ErrECallFailed      = errors.New("E3|CallFailed: Engine entry point trapped or returned an unexpected result.")
	ErrEBadStrategy     = errors.New("E4|BadStrategy: Scheduling strategy is not one the engine understands.")
	ErrEBadTopology     = errors.New("E5|BadTopology: Core or I/O device count out of range.")
	ErrEAllocFailed     = errors.New("E6|AllocFailed: Engine returned a null pointer for an allocation.")
	ErrEDoubleFree      = errors.New("E7|DoubleFree: Pointer released twice or never allocated.")
	ErrEEmptyProgram    = errors.New("E8|EmptyProgram: Program has no instructions.")
	ErrEEngineNotLoaded = errors.New("E9|EngineNotLoaded: No engine module configured.")
	ErrEEmptyName       = errors.New("E10|EmptyName: Program name must not be empty.")
)

// Store (S) Errors
var (
	ErrSNotFound    = errors.New("S1|NotFound: Key is not present in the store.")
	ErrSCorrupt     = errors.New("S2|Corrupt: Stored record failed to decode.")
	ErrSEmptyName   = errors.New("S3|EmptyName: Program name must not be empty.")
	ErrSNoRecording = errors.New("S4|NoRecording: No frames recorded in the requested range.")
)

// Config (C) Errors
var (
	ErrCInvalidValue = errors.New("C1|InvalidValue: Configuration value out of range.")
)

var all = []error{
	ErrAUnknownMnemonic, ErrAUnknownRegister, ErrAUnknownLabel, ErrABadOperand, ErrAOperandCount, ErrADuplicateLabel,
	ErrEUnknownProgram, ErrEMissingExport, ErrECallFailed, ErrEBadStrategy, ErrEBadTopology, ErrEAllocFailed,
	ErrEDoubleFree, ErrEEmptyProgram, ErrEEngineNotLoaded, ErrEEmptyName,
	ErrSNotFound, ErrSCorrupt, ErrSEmptyName, ErrSNoRecording,
	ErrCInvalidValue,
}

// Match returns the sentinel error wrapped by err, or nil.
func Match(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range all {
		if errors.Is(err, e) {
			return e
		}
	}
	return nil
}

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	if sentinel := Match(err); sentinel != nil {
		err = sentinel
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

func GetErrorNames(errs []error) []string {
	errStrs := make([]string, len(errs))
	for i, err := range errs {
		errStrs[i] = GetErrorName(err)
	}
	return errStrs
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	sentinel := Match(err)
	if sentinel == nil {
		return ""
	}
	parts := strings.SplitN(sentinel.Error(), "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	if sentinel := Match(err); sentinel != nil {
		err = sentinel
	}
	parts := strings.SplitN(err.Error(), ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}
