package tippayment

import "github.com/malbeclabs/tipdist/program/pkg/anchor"

var (
	ErrArithmeticError     = &anchor.ProgramError{Code: 6000, Name: "ArithmeticError", Msg: "arithmetic overflow or underflow"}
	ErrInvalidFee          = &anchor.ProgramError{Code: 6001, Name: "InvalidFee", Msg: "block builder commission must be at most 100 percent"}
	ErrInvalidTipReceiver  = &anchor.ProgramError{Code: 6002, Name: "InvalidTipReceiver", Msg: "tip receiver does not match the config"}
	ErrInvalidBlockBuilder = &anchor.ProgramError{Code: 6003, Name: "InvalidBlockBuilder", Msg: "block builder does not match the config"}
	ErrInvalidShard        = &anchor.ProgramError{Code: 6004, Name: "InvalidShard", Msg: "tip payment account index out of range"}
)

var Errors = []*anchor.ProgramError{
	ErrArithmeticError,
	ErrInvalidFee,
	ErrInvalidTipReceiver,
	ErrInvalidBlockBuilder,
	ErrInvalidShard,
}

var errorTable = anchor.NewErrorTable(anchor.FrameworkErrors, Errors)

// ErrorByCode resolves a numeric error code returned by the program.
func ErrorByCode(code uint32) (*anchor.ProgramError, bool) {
	return errorTable.Lookup(code)
}
