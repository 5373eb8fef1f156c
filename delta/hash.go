package delta

import (
	"crypto/sha256"
	"encoding"
	"encoding/base64"
	"hash"

	"github.com/pkg/errors"
)

// SHA256Calculator incrementally hashes a byte stream. Its internal
// state can be snapshotted and restored at any byte boundary, which is
// what makes crash-resumable hashing (and signing over a payload
// prefix) possible.
type SHA256Calculator struct {
	h   hash.Hash
	sum []byte
}

func NewSHA256Calculator() *SHA256Calculator {
	return &SHA256Calculator{h: sha256.New()}
}

func (c *SHA256Calculator) Update(data []byte) {
	// sha256 writes never fail
	c.h.Write(data)
}

// Context serializes the current hash state. The stdlib digest
// implements encoding.BinaryMarshaler; the state is stored base64'd so
// it survives a string-typed progress store.
func (c *SHA256Calculator) Context() (string, error) {
	marshaler := c.h.(encoding.BinaryMarshaler)
	raw, err := marshaler.MarshalBinary()
	if err != nil {
		return "", errors.WithStack(err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// SetContext restores a state previously returned by Context.
func (c *SHA256Calculator) SetContext(context string) error {
	raw, err := base64.StdEncoding.DecodeString(context)
	if err != nil {
		return errors.WithStack(err)
	}
	unmarshaler := c.h.(encoding.BinaryUnmarshaler)
	err = unmarshaler.UnmarshalBinary(raw)
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Finalize computes the digest. Update must not be called afterwards.
func (c *SHA256Calculator) Finalize() error {
	if c.sum != nil {
		return errors.New("hash already finalized")
	}
	c.sum = c.h.Sum(nil)
	return nil
}

// Hash returns the finalized digest, base64-encoded, or "" if
// Finalize hasn't run.
func (c *SHA256Calculator) Hash() string {
	if c.sum == nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(c.sum)
}

// RawHash returns the finalized digest bytes, or nil if Finalize
// hasn't run.
func (c *SHA256Calculator) RawHash() []byte {
	return c.sum
}
