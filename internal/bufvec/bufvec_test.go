package bufvec

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuf(t *testing.T) {
	data := []byte("payload")

	buf, err := NewBuf(data, 4096)
	require.NoError(t, err)
	assert.Equal(t, data, buf.Data)
	assert.Equal(t, int64(4096), buf.Off)

	_, err = NewBuf(nil, 0)
	assert.ErrorIs(t, err, syscall.EINVAL)

	_, err = NewBuf(data, -1)
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestBufFiniLeavesBytes(t *testing.T) {
	data := []byte("payload")
	buf, err := NewBuf(data, 0)
	require.NoError(t, err)

	buf.Fini()
	assert.Nil(t, buf.Data)
	// The user's bytes are untouched.
	assert.Equal(t, []byte("payload"), data)
}

func TestFromBuf(t *testing.T) {
	data := make([]byte, 8192)
	buf, err := NewBuf(data, 4096)
	require.NoError(t, err)

	vec, err := FromBuf(buf)
	require.NoError(t, err)

	assert.Equal(t, 1, vec.Nr())
	assert.True(t, vec.HasData())
	assert.Equal(t, Extent{Off: 4096, Len: 8192}, vec.Exts[0])
	assert.True(t, vec.Invariant())

	_, err = FromBuf(nil)
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestFromExtents(t *testing.T) {
	vec, err := FromExtents([]Extent{{Off: 0, Len: 4096}, {Off: 8192, Len: 4096}})
	require.NoError(t, err)

	assert.Equal(t, 2, vec.Nr())
	assert.False(t, vec.HasData())
	assert.True(t, vec.Invariant())

	_, err = FromExtents(nil)
	assert.ErrorIs(t, err, syscall.EINVAL)

	_, err = FromExtents([]Extent{{Off: 0, Len: 0}})
	assert.ErrorIs(t, err, syscall.EINVAL)

	_, err = FromExtents([]Extent{{Off: -1, Len: 4096}})
	assert.ErrorIs(t, err, syscall.EINVAL)
}

func TestMoveTransfersOwnership(t *testing.T) {
	data := make([]byte, 4096)
	buf, err := NewBuf(data, 0)
	require.NoError(t, err)
	src, err := FromBuf(buf)
	require.NoError(t, err)

	var dst Vec
	dst.Move(src)

	// Destination took the arrays; source is zeroed.
	assert.Equal(t, 1, dst.Nr())
	assert.True(t, dst.HasData())
	assert.Zero(t, src.Nr())
	assert.False(t, src.HasData())
	assert.False(t, src.Invariant())

	// Finalizing the drained source must not disturb the destination.
	src.Fini()
	assert.True(t, dst.Invariant())
	assert.Same(t, &data[0], &dst.Bufs[0][0])
}

func TestVecFiniLeavesBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	buf, err := NewBuf(data, 0)
	require.NoError(t, err)
	vec, err := FromBuf(buf)
	require.NoError(t, err)

	vec.Fini()
	assert.Zero(t, vec.Nr())
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestInvariant(t *testing.T) {
	cases := []struct {
		name string
		vec  *Vec
		want bool
	}{
		{"nil", nil, false},
		{"empty", &Vec{}, false},
		{"extent_only", &Vec{Exts: []Extent{{Off: 0, Len: 4096}}}, true},
		{"zero_len", &Vec{Exts: []Extent{{Off: 0, Len: 0}}}, false},
		{"negative_off", &Vec{Exts: []Extent{{Off: -4096, Len: 4096}}}, false},
		{
			"data_ok",
			&Vec{
				Bufs:  [][]byte{make([]byte, 4096)},
				Exts:  []Extent{{Off: 0, Len: 4096}},
				Flags: FlagData,
			},
			true,
		},
		{
			"data_arrays_mismatched",
			&Vec{
				Bufs:  [][]byte{},
				Exts:  []Extent{{Off: 0, Len: 4096}},
				Flags: FlagData,
			},
			false,
		},
		{
			"data_size_mismatched",
			&Vec{
				Bufs:  [][]byte{make([]byte, 100)},
				Exts:  []Extent{{Off: 0, Len: 4096}},
				Flags: FlagData,
			},
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.vec.Invariant())
		})
	}
}
