package pk

import "testing"

import "github.com/stretchr/testify/assert"

func TestHashDeterministic(t *testing.T) {
	a := Tuple{Int(1), Text("x")}
	b := Tuple{Int(1), Text("x")}
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestHashDistinguishesArity(t *testing.T) {
	a := Tuple{Int(1)}
	b := Tuple{Int(1), Null()}
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHashDistinguishesType(t *testing.T) {
	a := Tuple{Int(1)}
	b := Tuple{Text("1")}
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHashDistinguishesOrder(t *testing.T) {
	a := Tuple{Int(1), Text("y")}
	b := Tuple{Text("y"), Int(1)}
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestTupleHasNull(t *testing.T) {
	assert.True(t, Tuple{Int(1), Null()}.HasNull())
	assert.False(t, Tuple{Int(1), Text("a")}.HasNull())
}

func TestDigestSetCapAndWarn(t *testing.T) {
	set := NewDigestSet(2)
	d1, d2, d3 := Digest(1), Digest(2), Digest(3)

	already, capped := set.Insert(d1)
	assert.False(t, already)
	assert.False(t, capped)

	already, capped = set.Insert(d2)
	assert.False(t, already)
	assert.True(t, capped)
	assert.True(t, set.Capped())

	// Once capped, further inserts are no-ops.
	already, capped = set.Insert(d3)
	assert.False(t, already)
	assert.False(t, capped)
	assert.False(t, set.Contains(d3))
}

func TestDigestSetDuplicate(t *testing.T) {
	set := NewDigestSet(10)
	d := Digest(42)
	already, _ := set.Insert(d)
	assert.False(t, already)
	already, _ = set.Insert(d)
	assert.True(t, already)
}
