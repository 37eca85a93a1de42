package anchor

import (
	"bytes"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Marshal encodes disc followed by body. When size is positive the output
// is zero padded to exactly size bytes.
func Marshal(disc bin.TypeID, size int, body bin.BinaryMarshaler) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc[:])
	if err := body.MarshalWithEncoder(bin.NewBorshEncoder(&buf)); err != nil {
		return nil, err
	}
	if size <= 0 {
		return buf.Bytes(), nil
	}
	if buf.Len() > size {
		return nil, fmt.Errorf("anchor: encoded length %d exceeds allocated %d", buf.Len(), size)
	}
	out := make([]byte, size)
	copy(out, buf.Bytes())
	return out, nil
}

// Unmarshal checks the discriminator of data and decodes the remainder into
// body. Trailing padding is ignored.
func Unmarshal(data []byte, disc bin.TypeID, body bin.BinaryUnmarshaler) error {
	if len(data) < DiscriminatorSize {
		return ErrAccountDiscriminatorNotFound
	}
	if !disc.Equal(data[:DiscriminatorSize]) {
		return ErrAccountDiscriminatorMismatch
	}
	if err := body.UnmarshalWithDecoder(bin.NewBorshDecoder(data[DiscriminatorSize:])); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountDidNotDeserialize, err)
	}
	return nil
}

// HasDiscriminator reports whether data is tagged with disc.
func HasDiscriminator(data []byte, disc bin.TypeID) bool {
	return len(data) >= DiscriminatorSize && disc.Equal(data[:DiscriminatorSize])
}

func WritePublicKey(enc *bin.Encoder, pk solana.PublicKey) error {
	return enc.WriteBytes(pk[:], false)
}

func ReadPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func ReadHash(dec *bin.Decoder) (solana.Hash, error) {
	pk, err := ReadPublicKey(dec)
	return solana.Hash(pk), err
}

func WriteOptionalUint64(enc *bin.Encoder, v *uint64) error {
	if err := enc.WriteOption(v != nil); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return enc.WriteUint64(*v, binary.LittleEndian)
}

func ReadOptionalUint64(dec *bin.Decoder) (*uint64, error) {
	some, err := dec.ReadOption()
	if err != nil || !some {
		return nil, err
	}
	v, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Writer sequences encoder calls and keeps the first error.
type Writer struct {
	enc *bin.Encoder
	err error
}

func NewWriter(enc *bin.Encoder) *Writer {
	return &Writer{enc: enc}
}

func (w *Writer) PublicKey(pk solana.PublicKey) {
	if w.err == nil {
		w.err = WritePublicKey(w.enc, pk)
	}
}

func (w *Writer) U64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, binary.LittleEndian)
	}
}

func (w *Writer) U16(v uint16) {
	if w.err == nil {
		w.err = w.enc.WriteUint16(v, binary.LittleEndian)
	}
}

func (w *Writer) U8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *Writer) Bool(v bool) {
	if w.err == nil {
		w.err = w.enc.WriteBool(v)
	}
}

func (w *Writer) Option(some bool) {
	if w.err == nil {
		w.err = w.enc.WriteOption(some)
	}
}

func (w *Writer) OptionalU64(v *uint64) {
	if w.err == nil {
		w.err = WriteOptionalUint64(w.enc, v)
	}
}

// Hashes writes a u32 length prefix followed by each digest.
func (w *Writer) Hashes(hs []solana.Hash) {
	if w.err == nil {
		w.err = w.enc.WriteUint32(uint32(len(hs)), binary.LittleEndian)
	}
	for _, h := range hs {
		if w.err != nil {
			return
		}
		w.err = w.enc.WriteBytes(h[:], false)
	}
}

func (w *Writer) Err() error {
	return w.err
}

// Reader sequences decoder calls and keeps the first error.
type Reader struct {
	dec *bin.Decoder
	err error
}

func NewReader(dec *bin.Decoder) *Reader {
	return &Reader{dec: dec}
}

func (r *Reader) PublicKey() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	var pk solana.PublicKey
	pk, r.err = ReadPublicKey(r.dec)
	return pk
}

func (r *Reader) Hash() solana.Hash {
	return solana.Hash(r.PublicKey())
}

func (r *Reader) U64() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	v, r.err = r.dec.ReadUint64(binary.LittleEndian)
	return v
}

func (r *Reader) U16() uint16 {
	if r.err != nil {
		return 0
	}
	var v uint16
	v, r.err = r.dec.ReadUint16(binary.LittleEndian)
	return v
}

func (r *Reader) U8() uint8 {
	if r.err != nil {
		return 0
	}
	var v uint8
	v, r.err = r.dec.ReadUint8()
	return v
}

func (r *Reader) Bool() bool {
	if r.err != nil {
		return false
	}
	var v bool
	v, r.err = r.dec.ReadBool()
	return v
}

func (r *Reader) Option() bool {
	if r.err != nil {
		return false
	}
	var v bool
	v, r.err = r.dec.ReadOption()
	return v
}

func (r *Reader) OptionalU64() *uint64 {
	if r.err != nil {
		return nil
	}
	var v *uint64
	v, r.err = ReadOptionalUint64(r.dec)
	return v
}

// maxHashes bounds decoded proof lengths; a u64 index space has at most 64 layers.
const maxHashes = 64

func (r *Reader) Hashes() []solana.Hash {
	if r.err != nil {
		return nil
	}
	n, err := r.dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		r.err = err
		return nil
	}
	if n > maxHashes {
		r.err = fmt.Errorf("anchor: proof length %d exceeds %d", n, maxHashes)
		return nil
	}
	out := make([]solana.Hash, n)
	for i := range out {
		out[i] = r.Hash()
	}
	if r.err != nil {
		return nil
	}
	return out
}

func (r *Reader) Err() error {
	return r.err
}
