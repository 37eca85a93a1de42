package tippayment

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the mainnet tip payment program.
var DefaultProgramID = solana.MustPublicKeyFromBase58("T1pyyaTNZsKv2WcRAB8oVnk93mLJw2XzjtVYqCsaHqt")

// NumTipPaymentAccounts is the number of shards producers spread tips over.
const NumTipPaymentAccounts = 8

const (
	ConfigSeed            = "CONFIG_ACCOUNT"
	TipPaymentAccountSeed = "TIP_ACCOUNT_"
)

func ConfigAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, programID)
}

// TipPaymentAccountAddress derives the address of shard i.
func TipPaymentAccountAddress(programID solana.PublicKey, i int) (solana.PublicKey, uint8, error) {
	if i < 0 || i >= NumTipPaymentAccounts {
		return solana.PublicKey{}, 0, fmt.Errorf("tip payment account index %d out of range", i)
	}
	return solana.FindProgramAddress([][]byte{[]byte(fmt.Sprintf("%s%d", TipPaymentAccountSeed, i))}, programID)
}

// TipPaymentAccountAddresses derives every shard address with its bump.
func TipPaymentAccountAddresses(programID solana.PublicKey) ([NumTipPaymentAccounts]solana.PublicKey, [NumTipPaymentAccounts]uint8, error) {
	var (
		addrs [NumTipPaymentAccounts]solana.PublicKey
		bumps [NumTipPaymentAccounts]uint8
	)
	for i := range addrs {
		addr, bump, err := TipPaymentAccountAddress(programID, i)
		if err != nil {
			return addrs, bumps, err
		}
		addrs[i], bumps[i] = addr, bump
	}
	return addrs, bumps, nil
}
