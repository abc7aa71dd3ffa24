package arnsmachine

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	boom "github.com/tylertreat/BoomFilters"
)

// Sign produces a hex schnorr signature over sha256(message).
func Sign(message []byte, privateKey string) (signature string, e error) {
	hash := sha256.Sum256(message)

	s, err := hex.DecodeString(privateKey)
	if err != nil {
		return signature, fmt.Errorf("Sign called with invalid private key: %w", err)
	}
	sk, _ := btcec.PrivKeyFromBytes(s)

	sig, err := schnorr.Sign(sk, hash[:])
	if err != nil {
		return signature, err
	}

	return hex.EncodeToString(sig.Serialize()), nil
}

// PublicKeyFor returns the x-only public key (our Account format) of a hex private key.
func PublicKeyFor(privateKey string) (Account, error) {
	s, err := hex.DecodeString(privateKey)
	if err != nil {
		return "", err
	}
	_, pk := btcec.PrivKeyFromBytes(s)
	return hex.EncodeToString(schnorr.SerializePubKey(pk)), nil
}

// VerifySignature checks a hex schnorr signature over sha256(message) against an x-only
// public key account.
func VerifySignature(message []byte, signature string, account Account) bool {
	hash := sha256.Sum256(message)
	pk, err := hex.DecodeString(account)
	if err != nil {
		LogCLI(err.Error(), 3)
		return false
	}
	pubkey, err := schnorr.ParsePubKey(pk)
	if err != nil {
		LogCLI(err.Error(), 3)
		return false
	}
	s, err := hex.DecodeString(signature)
	if err != nil {
		LogCLI(err.Error(), 3)
		return false
	}
	sig, err := schnorr.ParseSignature(s)
	if err != nil {
		LogCLI(err.Error(), 3)
		return false
	}
	return sig.Verify(hash[:], pubkey)
}

func Sha256(data interface{}) S256Hash {
	var b []byte
	switch d := data.(type) {
	case string:
		b = []byte(d)
	case []byte:
		b = d
	default:
		LogCLI("attempted to hash non-string or non-[]byte", 0)
	}
	h := sha256.New()
	h.Write(b)
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Sha256Bytes is Sha256 without the hex round trip, used when chaining entropy.
func Sha256Bytes(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// MakeNewInverseBloomFilter returns a func that reports true the first time it sees a message.
// An inverse bloom filter never reports a false "seen", so nothing new is ever dropped.
func MakeNewInverseBloomFilter(capacity uint) func(message interface{}) bool {
	ibf := boom.NewInverseBloomFilter(capacity)
	return func(message interface{}) bool {
		b := []byte(fmt.Sprint(message))
		return !ibf.TestAndAdd(b)
	}
}

// AppendData writes data to the buffer that lives as long as the HashSeq. Variable length
// values are length prefixed so that adjacent values can never run into each other.
// Call HashSeq.S256 to hash the buffer and write the hash to HashSeq.Hash
func (h *HashSeq) AppendData(data interface{}) error {
	switch d := data.(type) {
	case string:
		h.appendLength(len(d))
		h.Data.WriteString(d)
	case []byte:
		h.appendLength(len(d))
		h.Data.Write(d)
	case int64:
		h.appendUint(uint64(d))
	case int:
		h.appendUint(uint64(d))
	case uint64:
		h.appendUint(d)
	case []string:
		h.appendLength(len(d))
		for _, s := range d {
			h.appendLength(len(s))
			h.Data.WriteString(s)
		}
	case bool:
		if d {
			h.Data.WriteByte(1)
		} else {
			h.Data.WriteByte(0)
		}
	case fmt.Stringer:
		return h.AppendData(d.String())
	default:
		return fmt.Errorf("cannot hash %T", data)
	}
	return nil
}

func (h *HashSeq) appendUint(n uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	h.Data.Write(b[:])
}

func (h *HashSeq) appendLength(n int) {
	h.appendUint(uint64(n))
}

// AppendAll appends every value in order and stops at the first error.
func (h *HashSeq) AppendAll(data ...interface{}) error {
	for _, d := range data {
		if err := h.AppendData(d); err != nil {
			return err
		}
	}
	return nil
}

// S256 calculates the sha256 hash of the HashSeq and stores it as the HashSeq.Hash
//It resets the HashSeq.Data buffer.
func (h *HashSeq) S256() {
	h.Hash = fmt.Sprintf("%x", sha256.Sum256(h.Data.Bytes()))
	h.Data = bytes.Buffer{}
}

// Merkle folds a list of leaves pairwise until one root remains.
func Merkle(current [][]byte) (next [][]byte) {
	if len(current) == 0 {
		return [][]byte{Sha256Bytes(nil)}
	}
	for i := 0; i < len(current); i += 2 {
		if i+2 > len(current) {
			next = append(next, current[i])
		} else {
			buf := bytes.Buffer{}
			buf.Write(current[i])
			buf.Write(current[i+1])
			next = append(next, Sha256Bytes(buf.Bytes()))
		}
	}
	if len(next) > 1 {
		return Merkle(next)
	}
	return next
}
