// Package anchor holds the record and instruction conventions shared by the
// tip programs: 8-byte sighash discriminators, Borsh bodies, and enumerable
// program errors.
package anchor

import (
	bin "github.com/gagliardetto/binary"
)

const DiscriminatorSize = 8

// AccountDiscriminator is sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) bin.TypeID {
	return bin.TypeIDFromBytes(bin.SighashAccount(name))
}

// InstructionDiscriminator is sha256("global:<snake_name>")[:8].
func InstructionDiscriminator(name string) bin.TypeID {
	return bin.TypeIDFromBytes(bin.SighashInstruction(name))
}
