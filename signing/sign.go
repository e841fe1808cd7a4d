package signing

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/minio/sha256-simd"
	"github.com/spacemeshos/go-scale"

	"github.com/energywebfoundation/worker-contract-sub000/types"
)

// MaxArgsSize bounds the encoded arguments of a signed request.
const MaxArgsSize = 1 << 20

var (
	ErrSigningFailed    = errors.New("couldn't sign")
	ErrSignatureInvalid = errors.New("signature is invalid")
	ErrInvalidPubkeyLen = errors.New("pubkey has invalid length")
)

// Signed gives read-only access to data whose signature was checked.
type Signed[T any] interface {
	// Data retrieves the underlying data.
	// The received data is READ ONLY.
	Data() *T
	PubKey() []byte
	Signature() []byte
	// Signer is the ledger address of the key that signed.
	Signer() types.Address
}

type signedData[T any] struct {
	data      T
	pubkey    []byte
	signature []byte
}

func (d *signedData[T]) Data() *T {
	return &d.data
}

func (d *signedData[T]) PubKey() []byte {
	return d.pubkey
}

func (d *signedData[T]) Signature() []byte {
	return d.signature
}

func (d *signedData[T]) Signer() types.Address {
	return Address(d.pubkey)
}

// Address derives the ledger address of an ed25519 public key: the last
// 20 bytes of its sha256.
func Address(pubkey []byte) types.Address {
	sum := sha256.Sum256(pubkey)
	var addr types.Address
	copy(addr[:], sum[len(sum)-types.AddressLength:])
	return addr
}

// Request is what a caller signs to run a mutating operation. Args holds
// the canonical JSON of the operation arguments and Timestamp the unix
// time in seconds at which the request was made.
type Request struct {
	Operation string
	Args      []byte
	Timestamp uint64
}

func (r *Request) EncodeScale(enc *scale.Encoder) (total int, err error) {
	n, err := scale.EncodeString(enc, r.Operation)
	if err != nil {
		return total, err
	}
	total += n
	n, err = scale.EncodeByteSliceWithLimit(enc, r.Args, MaxArgsSize)
	if err != nil {
		return total, err
	}
	total += n
	n, err = scale.EncodeCompact64(enc, r.Timestamp)
	if err != nil {
		return total, err
	}
	total += n
	return total, nil
}

type notHashed struct{}

func (notHashed) HashFunc() crypto.Hash { return crypto.Hash(0) }

type encodable[P any] interface {
	scale.Encodable
	*P
}

func encode[T any, Encodable encodable[T]](data T) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Encodable(&data).EncodeScale(scale.NewEncoder(&buf)); err != nil {
		return nil, fmt.Errorf("failed to serialize data (%w)", err)
	}
	return buf.Bytes(), nil
}

// Sign signs the scale encoding of data with an ed25519 signer.
func Sign[T any, Encodable encodable[T]](data T, signer crypto.Signer) (Signed[T], error) {
	pubkey, ok := signer.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w (not an ed25519 key)", ErrSigningFailed)
	}
	msg, err := encode[T, Encodable](data)
	if err != nil {
		return nil, err
	}
	signature, err := signer.Sign(nil, msg, notHashed{})
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrSigningFailed, err)
	}
	return &signedData[T]{
		data:      data,
		pubkey:    pubkey,
		signature: signature,
	}, nil
}

// NewFromScaleEncodable checks signature over the scale encoding of data.
func NewFromScaleEncodable[T any, Encodable encodable[T]](data T, signature, pubkey []byte) (Signed[T], error) {
	if l := len(pubkey); l != ed25519.PublicKeySize {
		return nil, ErrInvalidPubkeyLen
	}
	msg, err := encode[T, Encodable](data)
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(pubkey, msg, signature) {
		return nil, ErrSignatureInvalid
	}
	return &signedData[T]{
		data:      data,
		pubkey:    pubkey,
		signature: signature,
	}, nil
}
