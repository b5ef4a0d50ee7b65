// Package pk implements the typed primary/foreign-key value representation
// and the bounded-memory digest used by the validator, sampler, shard
// extractor, and differ for uniqueness and membership checks.
package pk

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindBigInt
	KindText
)

// Value is the typed value used for PK/FK identity comparisons.
type Value struct {
	Kind Kind
	I    int64
	S    string
}

func Null() Value               { return Value{Kind: KindNull} }
func Int(v int64) Value         { return Value{Kind: KindInt, I: v} }
func BigInt(v int64) Value      { return Value{Kind: KindBigInt, I: v} }
func Text(v string) Value       { return Value{Kind: KindText, S: v} }
func (v Value) IsNull() bool    { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "NULL"
	case KindInt, KindBigInt:
		return strconv.FormatInt(v.I, 10)
	case KindText:
		return v.S
	default:
		return ""
	}
}

// Tuple is an ordered sequence of Values forming a composite key.
type Tuple []Value

// Digest is a 64-bit surrogate for a Tuple, used for bounded-memory
// uniqueness and membership checks. It mixes each value's type
// discriminator, its length/bytes, and the tuple's arity so that different
// types, different arities, or different orderings hash distinctly.
type Digest uint64

// Hash computes the digest of a tuple. It is a pure function: the same
// tuple always yields the same digest.
func (t Tuple) Hash() Digest {
	h := xxhash.New()
	var scratch [9]byte

	// Arity first, so that e.g. a 1-tuple and an identical-bytes prefix of a
	// 2-tuple never collide trivially.
	binary.LittleEndian.PutUint64(scratch[:8], uint64(len(t)))
	h.Write(scratch[:8])

	for _, v := range t {
		scratch[0] = byte(v.Kind)
		h.Write(scratch[:1])

		switch v.Kind {
		case KindNull:
			// No payload: NULL is fully determined by its type discriminator.
		case KindInt, KindBigInt:
			binary.LittleEndian.PutUint64(scratch[:8], uint64(v.I))
			h.Write(scratch[:8])
		case KindText:
			binary.LittleEndian.PutUint64(scratch[:8], uint64(len(v.S)))
			h.Write(scratch[:8])
			h.Write([]byte(v.S))
		}
	}

	return Digest(h.Sum64())
}

// HasNull reports whether any component of the tuple is NULL. Used to
// suppress FK checks.
func (t Tuple) HasNull() bool {
	for _, v := range t {
		if v.IsNull() {
			return true
		}
	}
	return false
}
