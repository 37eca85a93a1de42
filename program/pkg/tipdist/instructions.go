package tipdist

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
)

// Instruction is one request to the program. Account keys travel in the
// instruction body; the signer fields name the identity the hosting runtime
// has already authenticated.
type Instruction interface {
	bin.BinaryMarshaler
	bin.BinaryUnmarshaler
	Name() string
}

// Initialize creates the program Config.
type Initialize struct {
	Authority                 solana.PublicKey
	ExpiredFundsAccount       solana.PublicKey
	NumEpochsValid            uint64
	MaxValidatorCommissionBps uint16
	Payer                     solana.PublicKey
}

// UpdateConfig replaces the Config fields. Authority must sign.
type UpdateConfig struct {
	Authority solana.PublicKey
	NewConfig Config
}

// InitializeTipDistributionAccount creates the account of a validator for
// the current epoch. Signer must be the vote account's node identity.
type InitializeTipDistributionAccount struct {
	Signer                    solana.PublicKey
	ValidatorVoteAccount      solana.PublicKey
	MerkleRootUploadAuthority solana.PublicKey
	ValidatorCommissionBps    uint16
	Payer                     solana.PublicKey
}

type UploadMerkleRoot struct {
	TipDistributionAccount solana.PublicKey
	Authority              solana.PublicKey
	Root                   solana.Hash
	MaxTotalClaim          uint64
	MaxNumNodes            uint64
}

// Claim pays Amount to Claimant. Payer funds the ClaimStatus reserve and
// may differ from Claimant.
type Claim struct {
	TipDistributionAccount solana.PublicKey
	Claimant               solana.PublicKey
	Payer                  solana.PublicKey
	Amount                 uint64
	Proof                  []solana.Hash
}

type CloseClaimStatus struct {
	ClaimStatus      solana.PublicKey
	ClaimStatusPayer solana.PublicKey
}

type CloseTipDistributionAccount struct {
	TipDistributionAccount solana.PublicKey
	ExpiredFundsAccount    solana.PublicKey
}

type InitializeMerkleRootUploadConfig struct {
	Authority               solana.PublicKey
	OverrideAuthority       solana.PublicKey
	OriginalUploadAuthority solana.PublicKey
	Payer                   solana.PublicKey
}

type UpdateMerkleRootUploadConfig struct {
	Authority               solana.PublicKey
	OverrideAuthority       solana.PublicKey
	OriginalUploadAuthority solana.PublicKey
}

type MigrateTdaMerkleRootUploadAuthority struct {
	TipDistributionAccount solana.PublicKey
}

func (*Initialize) Name() string                          { return "Initialize" }
func (*UpdateConfig) Name() string                        { return "UpdateConfig" }
func (*InitializeTipDistributionAccount) Name() string    { return "InitializeTipDistributionAccount" }
func (*UploadMerkleRoot) Name() string                    { return "UploadMerkleRoot" }
func (*Claim) Name() string                               { return "Claim" }
func (*CloseClaimStatus) Name() string                    { return "CloseClaimStatus" }
func (*CloseTipDistributionAccount) Name() string         { return "CloseTipDistributionAccount" }
func (*InitializeMerkleRootUploadConfig) Name() string    { return "InitializeMerkleRootUploadConfig" }
func (*UpdateMerkleRootUploadConfig) Name() string        { return "UpdateMerkleRootUploadConfig" }
func (*MigrateTdaMerkleRootUploadAuthority) Name() string { return "MigrateTdaMerkleRootUploadAuthority" }

var instructionTypes = map[bin.TypeID]func() Instruction{}

func init() {
	for _, f := range []func() Instruction{
		func() Instruction { return new(Initialize) },
		func() Instruction { return new(UpdateConfig) },
		func() Instruction { return new(InitializeTipDistributionAccount) },
		func() Instruction { return new(UploadMerkleRoot) },
		func() Instruction { return new(Claim) },
		func() Instruction { return new(CloseClaimStatus) },
		func() Instruction { return new(CloseTipDistributionAccount) },
		func() Instruction { return new(InitializeMerkleRootUploadConfig) },
		func() Instruction { return new(UpdateMerkleRootUploadConfig) },
		func() Instruction { return new(MigrateTdaMerkleRootUploadAuthority) },
	} {
		instructionTypes[anchor.InstructionDiscriminator(f().Name())] = f
	}
}

// EncodeInstruction returns the 8-byte discriminator of ix followed by its
// Borsh body.
func EncodeInstruction(ix Instruction) ([]byte, error) {
	return anchor.Marshal(anchor.InstructionDiscriminator(ix.Name()), 0, ix)
}

func DecodeInstruction(data []byte) (Instruction, error) {
	if len(data) < anchor.DiscriminatorSize {
		return nil, anchor.ErrInstructionFallbackNotFound
	}
	newIx, ok := instructionTypes[bin.TypeIDFromBytes(data[:anchor.DiscriminatorSize])]
	if !ok {
		return nil, anchor.ErrInstructionFallbackNotFound
	}
	ix := newIx()
	dec := bin.NewBorshDecoder(data[anchor.DiscriminatorSize:])
	if err := ix.UnmarshalWithDecoder(dec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", anchor.ErrInstructionDidNotDeserialize, ix.Name(), err)
	}
	if dec.HasRemaining() {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", anchor.ErrInstructionDidNotDeserialize, ix.Name(), dec.Remaining())
	}
	return ix, nil
}

func (ix *Initialize) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.Authority)
	w.PublicKey(ix.ExpiredFundsAccount)
	w.U64(ix.NumEpochsValid)
	w.U16(ix.MaxValidatorCommissionBps)
	w.PublicKey(ix.Payer)
	return w.Err()
}

func (ix *Initialize) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.Authority = r.PublicKey()
	ix.ExpiredFundsAccount = r.PublicKey()
	ix.NumEpochsValid = r.U64()
	ix.MaxValidatorCommissionBps = r.U16()
	ix.Payer = r.PublicKey()
	return r.Err()
}

func (ix *UpdateConfig) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := anchor.WritePublicKey(enc, ix.Authority); err != nil {
		return err
	}
	return ix.NewConfig.MarshalWithEncoder(enc)
}

func (ix *UpdateConfig) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if ix.Authority, err = anchor.ReadPublicKey(dec); err != nil {
		return err
	}
	return ix.NewConfig.UnmarshalWithDecoder(dec)
}

func (ix *InitializeTipDistributionAccount) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.Signer)
	w.PublicKey(ix.ValidatorVoteAccount)
	w.PublicKey(ix.MerkleRootUploadAuthority)
	w.U16(ix.ValidatorCommissionBps)
	w.PublicKey(ix.Payer)
	return w.Err()
}

func (ix *InitializeTipDistributionAccount) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.Signer = r.PublicKey()
	ix.ValidatorVoteAccount = r.PublicKey()
	ix.MerkleRootUploadAuthority = r.PublicKey()
	ix.ValidatorCommissionBps = r.U16()
	ix.Payer = r.PublicKey()
	return r.Err()
}

func (ix *UploadMerkleRoot) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.TipDistributionAccount)
	w.PublicKey(ix.Authority)
	w.PublicKey(solana.PublicKey(ix.Root))
	w.U64(ix.MaxTotalClaim)
	w.U64(ix.MaxNumNodes)
	return w.Err()
}

func (ix *UploadMerkleRoot) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.TipDistributionAccount = r.PublicKey()
	ix.Authority = r.PublicKey()
	ix.Root = r.Hash()
	ix.MaxTotalClaim = r.U64()
	ix.MaxNumNodes = r.U64()
	return r.Err()
}

func (ix *Claim) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.TipDistributionAccount)
	w.PublicKey(ix.Claimant)
	w.PublicKey(ix.Payer)
	w.U64(ix.Amount)
	w.Hashes(ix.Proof)
	return w.Err()
}

func (ix *Claim) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.TipDistributionAccount = r.PublicKey()
	ix.Claimant = r.PublicKey()
	ix.Payer = r.PublicKey()
	ix.Amount = r.U64()
	ix.Proof = r.Hashes()
	return r.Err()
}

func (ix *CloseClaimStatus) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.ClaimStatus)
	w.PublicKey(ix.ClaimStatusPayer)
	return w.Err()
}

func (ix *CloseClaimStatus) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.ClaimStatus = r.PublicKey()
	ix.ClaimStatusPayer = r.PublicKey()
	return r.Err()
}

func (ix *CloseTipDistributionAccount) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.TipDistributionAccount)
	w.PublicKey(ix.ExpiredFundsAccount)
	return w.Err()
}

func (ix *CloseTipDistributionAccount) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.TipDistributionAccount = r.PublicKey()
	ix.ExpiredFundsAccount = r.PublicKey()
	return r.Err()
}

func (ix *InitializeMerkleRootUploadConfig) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.Authority)
	w.PublicKey(ix.OverrideAuthority)
	w.PublicKey(ix.OriginalUploadAuthority)
	w.PublicKey(ix.Payer)
	return w.Err()
}

func (ix *InitializeMerkleRootUploadConfig) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.Authority = r.PublicKey()
	ix.OverrideAuthority = r.PublicKey()
	ix.OriginalUploadAuthority = r.PublicKey()
	ix.Payer = r.PublicKey()
	return r.Err()
}

func (ix *UpdateMerkleRootUploadConfig) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.Authority)
	w.PublicKey(ix.OverrideAuthority)
	w.PublicKey(ix.OriginalUploadAuthority)
	return w.Err()
}

func (ix *UpdateMerkleRootUploadConfig) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.Authority = r.PublicKey()
	ix.OverrideAuthority = r.PublicKey()
	ix.OriginalUploadAuthority = r.PublicKey()
	return r.Err()
}

func (ix *MigrateTdaMerkleRootUploadAuthority) MarshalWithEncoder(enc *bin.Encoder) error {
	return anchor.WritePublicKey(enc, ix.TipDistributionAccount)
}

func (ix *MigrateTdaMerkleRootUploadAuthority) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.TipDistributionAccount, err = anchor.ReadPublicKey(dec)
	return err
}
