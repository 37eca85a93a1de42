// Package ledger models the account store the tip programs execute against:
// addressed lamport balances with owner-tagged data, the rent-exempt reserve
// rule, and the checked transfer primitive every fund movement goes through.
package ledger

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
)

// AccountStorageOverhead is the per-account byte overhead charged by rent.
const AccountStorageOverhead = 128

type Account struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// NewSystemAccount returns an empty, system-owned account at addr. Accounts
// that do not exist in a store behave like this.
func NewSystemAccount(addr solana.PublicKey) *Account {
	return &Account{Address: addr, Owner: solana.SystemProgramID}
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Data != nil {
		c.Data = bytes.Clone(a.Data)
	}
	return &c
}

// IsEmpty reports whether the account holds nothing worth persisting.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && !a.Executable
}

// IsInitialized reports whether the account has been claimed by a program.
// A bare system account holding only lamports is not initialized.
func (a *Account) IsInitialized() bool {
	return a.Owner != solana.SystemProgramID || len(a.Data) > 0 || a.Executable
}

// Rent holds the parameters of the rent-exempt minimum balance.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  uint64
}

var DefaultRent = Rent{
	LamportsPerByteYear: 3480,
	ExemptionThreshold:  2,
}

// MinimumBalance returns the reserve an account with dataLen bytes must hold.
func (r Rent) MinimumBalance(dataLen int) uint64 {
	return (AccountStorageOverhead + uint64(dataLen)) * r.LamportsPerByteYear * r.ExemptionThreshold
}

// Clock is the execution-time view of the chain position.
type Clock struct {
	Slot          uint64
	Epoch         uint64
	UnixTimestamp int64
}
