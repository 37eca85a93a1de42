package ledger

import "github.com/gagliardetto/solana-go"

var reservedAccounts = map[solana.PublicKey]struct{}{
	solana.SystemProgramID:               {},
	solana.ConfigProgramID:               {},
	solana.StakeProgramID:                {},
	solana.VoteProgramID:                 {},
	solana.BPFLoaderDeprecatedProgramID:  {},
	solana.BPFLoaderProgramID:            {},
	solana.BPFLoaderUpgradeableProgramID: {},
	solana.Secp256k1ProgramID:            {},
	solana.FeatureProgramID:              {},
	solana.ComputeBudget:                 {},
	solana.AddressLookupTableProgramID:   {},
	solana.SysVarClockPubkey:             {},
	solana.SysVarEpochSchedulePubkey:     {},
	solana.SysVarFeesPubkey:              {},
	solana.SysVarInstructionsPubkey:      {},
	solana.SysVarRecentBlockHashesPubkey: {},
	solana.SysVarRentPubkey:              {},
	solana.SysVarRewardsPubkey:           {},
	solana.SysVarSlotHashesPubkey:        {},
	solana.SysVarSlotHistoryPubkey:       {},
	solana.SysVarStakeHistoryPubkey:      {},
	solana.SysVarStakeConfigPubkey:       {},
}

// IsReservedAccount reports whether pk is a native program or sysvar that
// can never be credited by a program.
func IsReservedAccount(pk solana.PublicKey) bool {
	_, ok := reservedAccounts[pk]
	return ok
}
