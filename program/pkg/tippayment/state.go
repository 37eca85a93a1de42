package tippayment

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/tipdist/program/pkg/anchor"
)

const (
	MaxBlockBuilderCommissionPct = 100
	ConfigSize                   = anchor.DiscriminatorSize + 32 + 32 + 8 + 1 + NumTipPaymentAccounts
	TipPaymentAccountSize        = anchor.DiscriminatorSize
)

var (
	ConfigDiscriminator            = anchor.AccountDiscriminator("Config")
	TipPaymentAccountDiscriminator = anchor.AccountDiscriminator("TipPaymentAccount")
)

type InitBumps struct {
	Config             uint8
	TipPaymentAccounts [NumTipPaymentAccounts]uint8
}

// Config names who is paid when the shards are drained and how the drained
// total is split between them.
type Config struct {
	TipReceiver               solana.PublicKey
	BlockBuilder              solana.PublicKey
	BlockBuilderCommissionPct uint64
	Bumps                     InitBumps
}

func (c *Config) MarshalWithEncoder(enc *bin.Encoder) error {
	w := anchor.NewWriter(enc)
	w.PublicKey(c.TipReceiver)
	w.PublicKey(c.BlockBuilder)
	w.U64(c.BlockBuilderCommissionPct)
	w.U8(c.Bumps.Config)
	for _, b := range c.Bumps.TipPaymentAccounts {
		w.U8(b)
	}
	return w.Err()
}

func (c *Config) UnmarshalWithDecoder(dec *bin.Decoder) error {
	r := anchor.NewReader(dec)
	c.TipReceiver = r.PublicKey()
	c.BlockBuilder = r.PublicKey()
	c.BlockBuilderCommissionPct = r.U64()
	c.Bumps.Config = r.U8()
	for i := range c.Bumps.TipPaymentAccounts {
		c.Bumps.TipPaymentAccounts[i] = r.U8()
	}
	return r.Err()
}

// TipPaymentAccount carries no fields; its lamports above the rent-exempt
// reserve are the pending tips of one shard.
type TipPaymentAccount struct{}

func (TipPaymentAccount) MarshalWithEncoder(*bin.Encoder) error { return nil }

func (*TipPaymentAccount) UnmarshalWithDecoder(*bin.Decoder) error { return nil }

func DecodeConfig(data []byte) (*Config, error) {
	var c Config
	if err := anchor.Unmarshal(data, ConfigDiscriminator, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
