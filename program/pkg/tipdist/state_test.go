package tipdist

import (
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
)

func TestTipDist_State_SizesFitLargestEncoding(t *testing.T) {
	t.Parallel()

	live := uint64(1)
	tests := []struct {
		name string
		disc bin.TypeID
		size int
		body bin.BinaryMarshaler
	}{
		{"config", ConfigDiscriminator, ConfigSize, &Config{GoLiveEpoch: &live}},
		{"tip distribution account", TipDistributionAccountDiscriminator, TipDistributionAccountSize, &TipDistributionAccount{MerkleRoot: &MerkleRoot{}}},
		{"claim status", ClaimStatusDiscriminator, ClaimStatusSize, &ClaimStatus{}},
		{"upload config", MerkleRootUploadConfigDiscriminator, MerkleRootUploadConfigSize, &MerkleRootUploadConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := anchor.Marshal(tt.disc, 0, tt.body)
			require.NoError(t, err)
			require.Len(t, data, tt.size)
		})
	}
}

func TestTipDist_State_TipDistributionAccountLayout(t *testing.T) {
	t.Parallel()

	vote := solana.NewWallet().PublicKey()
	tda := &TipDistributionAccount{
		ValidatorVoteAccount:      vote,
		MerkleRootUploadAuthority: solana.NewWallet().PublicKey(),
		EpochCreatedAt:            700,
		ValidatorCommissionBps:    800,
		ExpiresAt:                 703,
		Bump:                      254,
	}
	data, err := anchor.Marshal(TipDistributionAccountDiscriminator, TipDistributionAccountSize, tda)
	require.NoError(t, err)
	require.Len(t, data, TipDistributionAccountSize)
	require.Equal(t, TipDistributionAccountDiscriminator[:], data[:8])
	require.Equal(t, vote[:], data[8:40])
	require.Equal(t, byte(0), data[72], "absent root is a zero option tag")

	got, err := DecodeTipDistributionAccount(data)
	require.NoError(t, err)
	require.Equal(t, tda, got)

	_, err = DecodeClaimStatus(data)
	require.ErrorIs(t, err, anchor.ErrAccountDiscriminatorMismatch)
	_, err = DecodeConfig(data[:4])
	require.ErrorIs(t, err, anchor.ErrAccountDiscriminatorNotFound)
}
