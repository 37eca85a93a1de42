package anchor

import "fmt"

// ProgramError is an enumerable protocol failure. Each program declares its
// errors as package-level sentinels compared with errors.Is.
type ProgramError struct {
	Code uint32
	Name string
	Msg  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

var (
	ErrInstructionFallbackNotFound  = &ProgramError{101, "InstructionFallbackNotFound", "Fallback functions are not supported"}
	ErrInstructionDidNotDeserialize = &ProgramError{102, "InstructionDidNotDeserialize", "The program could not deserialize the given instruction"}
	ErrConstraintSeeds              = &ProgramError{2006, "ConstraintSeeds", "A seeds constraint was violated"}
	ErrAccountDiscriminatorNotFound = &ProgramError{3001, "AccountDiscriminatorNotFound", "No 8 byte discriminator was found on the account"}
	ErrAccountDiscriminatorMismatch = &ProgramError{3002, "AccountDiscriminatorMismatch", "8 byte discriminator did not match what was expected"}
	ErrAccountDidNotDeserialize     = &ProgramError{3003, "AccountDidNotDeserialize", "Failed to deserialize the account"}
	ErrAccountOwnedByWrongProgram   = &ProgramError{3007, "AccountOwnedByWrongProgram", "The given account is owned by a different program than expected"}
	ErrAccountNotInitialized        = &ProgramError{3012, "AccountNotInitialized", "The program expected this account to be already initialized"}
)

// FrameworkErrors lists the errors shared by every program.
var FrameworkErrors = []*ProgramError{
	ErrInstructionFallbackNotFound,
	ErrInstructionDidNotDeserialize,
	ErrConstraintSeeds,
	ErrAccountDiscriminatorNotFound,
	ErrAccountDiscriminatorMismatch,
	ErrAccountDidNotDeserialize,
	ErrAccountOwnedByWrongProgram,
	ErrAccountNotInitialized,
}

// ErrorTable indexes a set of program errors by code.
type ErrorTable map[uint32]*ProgramError

func NewErrorTable(errs ...[]*ProgramError) ErrorTable {
	t := make(ErrorTable)
	for _, set := range errs {
		for _, e := range set {
			if _, dup := t[e.Code]; dup {
				panic(fmt.Sprintf("anchor: duplicate error code %d (%s)", e.Code, e.Name))
			}
			t[e.Code] = e
		}
	}
	return t
}

func (t ErrorTable) Lookup(code uint32) (*ProgramError, bool) {
	e, ok := t[code]
	return e, ok
}
