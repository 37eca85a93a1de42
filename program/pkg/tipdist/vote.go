package tipdist

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/ledger"
)

const maxVoteStateVersion = 3

// NodePubkey returns the validator identity recorded in a vote account.
// Every vote state version stores it right after the 4-byte version tag.
func NodePubkey(acc *ledger.Account) (solana.PublicKey, error) {
	if acc.Owner != solana.VoteProgramID {
		return solana.PublicKey{}, fmt.Errorf("%w: %s is not owned by the vote program", ErrInvalidVoteAccountData, acc.Address)
	}
	if len(acc.Data) < 4+solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("%w: %d bytes", ErrInvalidVoteAccountData, len(acc.Data))
	}
	if v := binary.LittleEndian.Uint32(acc.Data[:4]); v > maxVoteStateVersion {
		return solana.PublicKey{}, fmt.Errorf("%w: unknown version %d", ErrInvalidVoteAccountData, v)
	}
	return solana.PublicKeyFromBytes(acc.Data[4 : 4+solana.PublicKeyLength]), nil
}
