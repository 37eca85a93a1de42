package tippayment

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
)

type Instruction interface {
	bin.BinaryMarshaler
	bin.BinaryUnmarshaler
	Name() string
}

// Initialize creates the Config and every tip payment account. Payer
// becomes both tip receiver and block builder with no commission.
type Initialize struct {
	Payer solana.PublicKey
}

// ClaimTips drains every shard and splits the total per the Config.
type ClaimTips struct {
	TipReceiver  solana.PublicKey
	BlockBuilder solana.PublicKey
	Signer       solana.PublicKey
}

// ChangeTipReceiver drains to the current receiver and builder, then
// installs NewTipReceiver.
type ChangeTipReceiver struct {
	OldTipReceiver solana.PublicKey
	NewTipReceiver solana.PublicKey
	BlockBuilder   solana.PublicKey
	Signer         solana.PublicKey
}

// ChangeBlockBuilder drains to the current receiver and builder, then
// installs NewBlockBuilder and its commission.
type ChangeBlockBuilder struct {
	TipReceiver               solana.PublicKey
	OldBlockBuilder           solana.PublicKey
	NewBlockBuilder           solana.PublicKey
	BlockBuilderCommissionPct uint64
	Signer                    solana.PublicKey
}

// Tip moves Amount from Payer into shard Shard.
type Tip struct {
	Payer  solana.PublicKey
	Shard  uint8
	Amount uint64
}

func (*Initialize) Name() string         { return "initialize" }
func (*ClaimTips) Name() string          { return "claim_tips" }
func (*ChangeTipReceiver) Name() string  { return "change_tip_receiver" }
func (*ChangeBlockBuilder) Name() string { return "change_block_builder" }
func (*Tip) Name() string                { return "tip" }

var instructionTypes = map[bin.TypeID]func() Instruction{}

func init() {
	for _, f := range []func() Instruction{
		func() Instruction { return new(Initialize) },
		func() Instruction { return new(ClaimTips) },
		func() Instruction { return new(ChangeTipReceiver) },
		func() Instruction { return new(ChangeBlockBuilder) },
		func() Instruction { return new(Tip) },
	} {
		instructionTypes[anchor.InstructionDiscriminator(f().Name())] = f
	}
}

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
	return anchor.WritePublicKey(enc, ix.Payer)
}

func (ix *Initialize) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	ix.Payer, err = anchor.ReadPublicKey(dec)
	return err
}

func (ix *ClaimTips) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.TipReceiver)
	w.PublicKey(ix.BlockBuilder)
	w.PublicKey(ix.Signer)
	return w.Err()
}

func (ix *ClaimTips) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.TipReceiver = r.PublicKey()
	ix.BlockBuilder = r.PublicKey()
	ix.Signer = r.PublicKey()
	return r.Err()
}

func (ix *ChangeTipReceiver) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.OldTipReceiver)
	w.PublicKey(ix.NewTipReceiver)
	w.PublicKey(ix.BlockBuilder)
	w.PublicKey(ix.Signer)
	return w.Err()
}

func (ix *ChangeTipReceiver) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.OldTipReceiver = r.PublicKey()
	ix.NewTipReceiver = r.PublicKey()
	ix.BlockBuilder = r.PublicKey()
	ix.Signer = r.PublicKey()
	return r.Err()
}

func (ix *ChangeBlockBuilder) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.TipReceiver)
	w.PublicKey(ix.OldBlockBuilder)
	w.PublicKey(ix.NewBlockBuilder)
	w.U64(ix.BlockBuilderCommissionPct)
	w.PublicKey(ix.Signer)
	return w.Err()
}

func (ix *ChangeBlockBuilder) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.TipReceiver = r.PublicKey()
	ix.OldBlockBuilder = r.PublicKey()
	ix.NewBlockBuilder = r.PublicKey()
	ix.BlockBuilderCommissionPct = r.U64()
	ix.Signer = r.PublicKey()
	return r.Err()
}

func (ix *Tip) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(ix.Payer)
	w.U8(ix.Shard)
	w.U64(ix.Amount)
	return w.Err()
}

func (ix *Tip) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	ix.Payer = r.PublicKey()
	ix.Shard = r.U8()
	ix.Amount = r.U64()
	return r.Err()
}
