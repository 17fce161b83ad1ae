package beagle

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkByteRoundTrip(t *testing.T) {
	c := NewChunk()
	c.WriteByte(0x42)
	assert.True(t, c.CanRead())
	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), b)
	assert.False(t, c.CanRead())
}

func TestChunkReadPastEndErrors(t *testing.T) {
	c := NewChunk()
	_, err := c.ReadByte()
	assert.Error(t, err)
	_, err = c.ReadI32()
	assert.Error(t, err)
	_, err = c.ReadU64()
	assert.Error(t, err)
	_, err = c.ReadString()
	assert.Error(t, err)
}

func TestChunkStringRoundTripEmpty(t *testing.T) {
	c := NewChunk()
	c.WriteString("")
	s, err := c.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestChunkPosRoundTrip(t *testing.T) {
	p := NewBiPos(Position{Line: 4, Col: 2}, Position{Line: 4, Col: 9}).withLineRegion(1)
	p.Offset = Position{Line: 12, Col: 19}
	c := NewChunk()
	c.WritePos(p)
	got, err := c.ReadPos()
	require.NoError(t, err)
	assert.Equal(t, p.Start, got.Start)
	assert.Equal(t, p.End, got.End)
	assert.Equal(t, p.Offset, got.Offset)
	assert.Equal(t, p.LineRegion, got.LineRegion)
}

// fuzzChunkField is one of a random mix of every Write* call Chunk exposes,
// paired with the Read* call that should invert it and the value written,
// used to drive a round-trip property test rather than hand enumerating
// every field combination.
type fuzzChunkField struct {
	want  interface{}
	write func(c *Chunk)
	read  func(c *Chunk) (interface{}, error)
}

func TestChunkRoundTripFuzz(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	for trial := 0; trial < 200; trial++ {
		var fields []fuzzChunkField

		n := r.Intn(12) + 1
		for i := 0; i < n; i++ {
			switch r.Intn(6) {
			case 0:
				v := byte(r.Intn(256))
				fields = append(fields, fuzzChunkField{
					want:  v,
					write: func(c *Chunk) { c.WriteByte(v) },
					read:  func(c *Chunk) (interface{}, error) { return c.ReadByte() },
				})
			case 1:
				v := r.Intn(2) == 0
				fields = append(fields, fuzzChunkField{
					want:  v,
					write: func(c *Chunk) { c.WriteBool(v) },
					read:  func(c *Chunk) (interface{}, error) { return c.ReadBool() },
				})
			case 2:
				v := r.Int31() - r.Int31()
				fields = append(fields, fuzzChunkField{
					want:  v,
					write: func(c *Chunk) { c.WriteI32(v) },
					read:  func(c *Chunk) (interface{}, error) { return c.ReadI32() },
				})
			case 3:
				v := r.Float32()
				fields = append(fields, fuzzChunkField{
					want:  v,
					write: func(c *Chunk) { c.WriteF32(v) },
					read:  func(c *Chunk) (interface{}, error) { return c.ReadF32() },
				})
			case 4:
				v := r.Uint64()
				fields = append(fields, fuzzChunkField{
					want:  v,
					write: func(c *Chunk) { c.WriteU64(v) },
					read:  func(c *Chunk) (interface{}, error) { return c.ReadU64() },
				})
			case 5:
				v := randomString(r, r.Intn(20))
				fields = append(fields, fuzzChunkField{
					want:  v,
					write: func(c *Chunk) { c.WriteString(v) },
					read:  func(c *Chunk) (interface{}, error) { return c.ReadString() },
				})
			}
		}

		c := NewChunk()
		for _, f := range fields {
			f.write(c)
		}
		for i, f := range fields {
			got, err := f.read(c)
			require.NoErrorf(t, err, "trial %d field %d", trial, i)
			assert.Equalf(t, f.want, got, "trial %d field %d", trial, i)
		}
		assert.Falsef(t, c.CanRead(), "trial %d: leftover bytes after reading back every written field", trial)
	}
}

func randomString(r *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 _"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}
