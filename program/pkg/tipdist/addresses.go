package tipdist

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the mainnet tip distribution program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("4R3gSG8BpU4t19KYj8CfnbtRpnT8gtk4dvTHxVRwc2r7")

const (
	ConfigSeed                 = "CONFIG_ACCOUNT"
	TipDistributionAccountSeed = "TIP_DISTRIBUTION_ACCOUNT"
	ClaimStatusSeed            = "CLAIM_STATUS"
	MerkleRootUploadConfigSeed = "ROOT_UPLOAD_CONFIG"
)

func configSeeds() [][]byte {
	return [][]byte{[]byte(ConfigSeed)}
}

func tipDistributionAccountSeeds(vote solana.PublicKey, epoch uint64) [][]byte {
	le := make([]byte, 8)
	binary.LittleEndian.PutUint64(le, epoch)
	return [][]byte{[]byte(TipDistributionAccountSeed), vote[:], le}
}

func claimStatusSeeds(claimant, tda solana.PublicKey) [][]byte {
	return [][]byte{[]byte(ClaimStatusSeed), claimant[:], tda[:]}
}

func merkleRootUploadConfigSeeds() [][]byte {
	return [][]byte{[]byte(MerkleRootUploadConfigSeed)}
}

func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(configSeeds(), programID)
}

// TipDistributionAccountAddress derives the account for a validator vote
// account in an epoch.
func TipDistributionAccountAddress(programID, vote solana.PublicKey, epoch uint64) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(tipDistributionAccountSeeds(vote, epoch), programID)
}

// ClaimStatusAddress derives the receipt of claimant against a distribution account.
func ClaimStatusAddress(programID, claimant, tda solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(claimStatusSeeds(claimant, tda), programID)
}

func MerkleRootUploadConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(merkleRootUploadConfigSeeds(), programID)
}
