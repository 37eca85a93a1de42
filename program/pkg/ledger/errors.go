package ledger

import "errors"

var (
	ErrAccountNotFound      = errors.New("ledger: account not found")
	ErrAccountAlreadyExists = errors.New("ledger: account already exists")
	ErrInsufficientFunds    = errors.New("ledger: insufficient funds")
	ErrRentExemptViolation  = errors.New("ledger: balance would fall below rent-exempt minimum")
	ErrArithmeticOverflow   = errors.New("ledger: arithmetic overflow")
	ErrSameAccount          = errors.New("ledger: source and destination are the same account")
)
