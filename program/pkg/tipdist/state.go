package tipdist

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
)

const (
	MaxNumEpochsValid          = 10
	MaxValidatorCommissionBps  = 10_000
	MerkleRootSize             = 32 + 8 + 8 + 8 + 8
	ConfigSize                 = anchor.DiscriminatorSize + 32 + 32 + 8 + 2 + 1 + 9
	TipDistributionAccountSize = anchor.DiscriminatorSize + 32 + 32 + 1 + MerkleRootSize + 8 + 2 + 8 + 1
	ClaimStatusSize            = anchor.DiscriminatorSize + 1 + 32 + 32 + 8 + 8 + 8 + 1
	MerkleRootUploadConfigSize = anchor.DiscriminatorSize + 32 + 32 + 1
)

var (
	ConfigDiscriminator                 = anchor.AccountDiscriminator("Config")
	TipDistributionAccountDiscriminator = anchor.AccountDiscriminator("TipDistributionAccount")
	ClaimStatusDiscriminator            = anchor.AccountDiscriminator("ClaimStatus")
	MerkleRootUploadConfigDiscriminator = anchor.AccountDiscriminator("MerkleRootUploadConfig")
)

// Config is the program-wide singleton.
type Config struct {
	Authority                 solana.PublicKey
	ExpiredFundsAccount       solana.PublicKey
	NumEpochsValid            uint64
	MaxValidatorCommissionBps uint16
	Bump                      uint8
	// GoLiveEpoch, when set, gates claims and expired-fund sweeps until
	// that epoch.
	GoLiveEpoch *uint64
}

func (c *Config) Validate() error {
	switch {
	case c.NumEpochsValid == 0 || c.NumEpochsValid > MaxNumEpochsValid:
		return fmt.Errorf("%w: num_epochs_valid %d not in [1, %d]", ErrAccountValidationFailure, c.NumEpochsValid, MaxNumEpochsValid)
	case c.MaxValidatorCommissionBps > MaxValidatorCommissionBps:
		return fmt.Errorf("%w: max_validator_commission_bps %d exceeds %d", ErrAccountValidationFailure, c.MaxValidatorCommissionBps, MaxValidatorCommissionBps)
	case c.Authority.IsZero():
		return fmt.Errorf("%w: authority is unset", ErrAccountValidationFailure)
	case c.ExpiredFundsAccount.IsZero():
		return fmt.Errorf("%w: expired_funds_account is unset", ErrAccountValidationFailure)
	}
	return nil
}

// IsLive reports whether fund movements gated on go-live are allowed in epoch.
func (c *Config) IsLive(epoch uint64) bool {
	return c.GoLiveEpoch == nil || epoch >= *c.GoLiveEpoch
}

func (c *Config) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(c.Authority)
	w.PublicKey(c.ExpiredFundsAccount)
	w.U64(c.NumEpochsValid)
	w.U16(c.MaxValidatorCommissionBps)
	w.U8(c.Bump)
	w.OptionalU64(c.GoLiveEpoch)
	return w.Err()
}

func (c *Config) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	c.Authority = r.PublicKey()
	c.ExpiredFundsAccount = r.PublicKey()
	c.NumEpochsValid = r.U64()
	c.MaxValidatorCommissionBps = r.U16()
	c.Bump = r.U8()
	c.GoLiveEpoch = r.OptionalU64()
	return r.Err()
}

// MerkleRoot is the commitment uploaded for a distribution account, with
// the running totals of what has been claimed against it.
type MerkleRoot struct {
	Root              solana.Hash
	MaxTotalClaim     uint64
	MaxNumNodes       uint64
	TotalFundsClaimed uint64
	NumNodesClaimed   uint64
}

// TipDistributionAccount holds one validator's claimable tips for one epoch.
type TipDistributionAccount struct {
	ValidatorVoteAccount      solana.PublicKey
	MerkleRootUploadAuthority solana.PublicKey
	MerkleRoot                *MerkleRoot
	EpochCreatedAt            uint64
	ValidatorCommissionBps    uint16
	ExpiresAt                 uint64
	Bump                      uint8
}

func (a *TipDistributionAccount) Validate() error {
	if a.ValidatorVoteAccount.IsZero() || a.MerkleRootUploadAuthority.IsZero() {
		return fmt.Errorf("%w: vote account and upload authority must be set", ErrAccountValidationFailure)
	}
	return nil
}

func (a *TipDistributionAccount) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(a.ValidatorVoteAccount)
	w.PublicKey(a.MerkleRootUploadAuthority)
	w.Option(a.MerkleRoot != nil)
	if r := a.MerkleRoot; r != nil {
		w.PublicKey(solana.PublicKey(r.Root))
		w.U64(r.MaxTotalClaim)
		w.U64(r.MaxNumNodes)
		w.U64(r.TotalFundsClaimed)
		w.U64(r.NumNodesClaimed)
	}
	w.U64(a.EpochCreatedAt)
	w.U16(a.ValidatorCommissionBps)
	w.U64(a.ExpiresAt)
	w.U8(a.Bump)
	return w.Err()
}

func (a *TipDistributionAccount) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	a.ValidatorVoteAccount = r.PublicKey()
	a.MerkleRootUploadAuthority = r.PublicKey()
	a.MerkleRoot = nil
	if r.Option() {
		a.MerkleRoot = &MerkleRoot{
			Root:              r.Hash(),
			MaxTotalClaim:     r.U64(),
			MaxNumNodes:       r.U64(),
			TotalFundsClaimed: r.U64(),
			NumNodesClaimed:   r.U64(),
		}
	}
	a.EpochCreatedAt = r.U64()
	a.ValidatorCommissionBps = r.U16()
	a.ExpiresAt = r.U64()
	a.Bump = r.U8()
	return r.Err()
}

// ClaimStatus is the receipt of a claim. Its existence prevents a second
// claim by the same claimant against the same distribution account.
type ClaimStatus struct {
	IsClaimed        bool
	Claimant         solana.PublicKey
	ClaimStatusPayer solana.PublicKey
	SlotClaimedAt    uint64
	Amount           uint64
	// ExpiresAt is copied from the distribution account so the receipt can
	// be closed after its parent is gone.
	ExpiresAt uint64
	Bump      uint8
}

func (s *ClaimStatus) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.Bool(s.IsClaimed)
	w.PublicKey(s.Claimant)
	w.PublicKey(s.ClaimStatusPayer)
	w.U64(s.SlotClaimedAt)
	w.U64(s.Amount)
	w.U64(s.ExpiresAt)
	w.U8(s.Bump)
	return w.Err()
}

func (s *ClaimStatus) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	s.IsClaimed = r.Bool()
	s.Claimant = r.PublicKey()
	s.ClaimStatusPayer = r.PublicKey()
	s.SlotClaimedAt = r.U64()
	s.Amount = r.U64()
	s.ExpiresAt = r.U64()
	s.Bump = r.U8()
	return r.Err()
}

// MerkleRootUploadConfig lets the config authority move upload rights of
// rootless accounts from OriginalUploadAuthority to OverrideAuthority.
type MerkleRootUploadConfig struct {
	OverrideAuthority       solana.PublicKey
	OriginalUploadAuthority solana.PublicKey
	Bump                    uint8
}

func (c *MerkleRootUploadConfig) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(c.OverrideAuthority)
	w.PublicKey(c.OriginalUploadAuthority)
	w.U8(c.Bump)
	return w.Err()
}

func (c *MerkleRootUploadConfig) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	c.OverrideAuthority = r.PublicKey()
	c.OriginalUploadAuthority = r.PublicKey()
	c.Bump = r.U8()
	return r.Err()
}

// DecodeConfig and the other Decode functions parse raw account data,
// checking the record discriminator.
func DecodeConfig(data []byte) (*Config, error) {
	var c Config
	if err := anchor.Unmarshal(data, ConfigDiscriminator, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func DecodeTipDistributionAccount(data []byte) (*TipDistributionAccount, error) {
	var a TipDistributionAccount
	if err := anchor.Unmarshal(data, TipDistributionAccountDiscriminator, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func DecodeClaimStatus(data []byte) (*ClaimStatus, error) {
	var s ClaimStatus
	if err := anchor.Unmarshal(data, ClaimStatusDiscriminator, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func DecodeMerkleRootUploadConfig(data []byte) (*MerkleRootUploadConfig, error) {
	var c MerkleRootUploadConfig
	if err := anchor.Unmarshal(data, MerkleRootUploadConfigDiscriminator, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
