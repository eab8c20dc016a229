package filestore

import (
	"context"
	"syscall"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dsal "github.com/Seagate/cortx-dsal"
	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

const bs = 4096

func newStore(t *testing.T) *Store {
	t.Helper()

	v := viper.New()
	v.Set("dstore.file.root", t.TempDir())
	v.Set("dstore.file.bsize", bs)

	s := New()
	require.NoError(t, s.Init(v))
	t.Cleanup(func() {
		_ = s.Fini()
	})
	return s
}

func newOpenObject(t *testing.T, s *Store) dsal.BackendObject {
	t.Helper()
	ctx := context.Background()

	var oid dsal.OID
	require.NoError(t, s.ObjGetID(&oid))
	require.NoError(t, s.ObjCreate(ctx, &oid))

	rec, err := s.ObjOpen(ctx, &oid)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.ObjClose(rec)
	})
	return rec
}

func runOp(t *testing.T, s *Store, rec dsal.BackendObject, typ dsal.OpType, vec *bufvec.Vec) error {
	t.Helper()

	op, err := s.OpInit(context.Background(), rec, typ, vec, nil)
	if err != nil {
		return err
	}
	require.NoError(t, s.OpSubmit(op))
	rc := s.OpWait(op)
	s.OpFini(op)
	return rc
}

func dataVec(t *testing.T, data []byte, off int64) *bufvec.Vec {
	t.Helper()
	buf, err := bufvec.NewBuf(data, off)
	require.NoError(t, err)
	vec, err := bufvec.FromBuf(buf)
	require.NoError(t, err)
	return vec
}

func TestInitRequiresRoot(t *testing.T) {
	s := New()
	err := s.Init(viper.New())
	assert.True(t, dsal.IsCode(err, dsal.ErrCodeInvalidArgument))
}

func TestObjectLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	var oid dsal.OID
	require.NoError(t, s.ObjGetID(&oid))

	_, err := s.ObjOpen(ctx, &oid)
	assert.True(t, dsal.IsErrno(err, syscall.ENOENT))

	require.NoError(t, s.ObjCreate(ctx, &oid))
	assert.True(t, dsal.IsErrno(s.ObjCreate(ctx, &oid), syscall.EEXIST))

	rec, err := s.ObjOpen(ctx, &oid)
	require.NoError(t, err)
	require.NoError(t, s.ObjClose(rec))

	require.NoError(t, s.ObjDelete(ctx, &oid))
	assert.True(t, dsal.IsErrno(s.ObjDelete(ctx, &oid), syscall.ENOENT))
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := newStore(t)
	rec := newOpenObject(t, s)

	payload := make([]byte, 2*bs)
	for i := range payload {
		payload[i] = byte(i % 247)
	}
	require.NoError(t, runOp(t, s, rec, dsal.OpWrite, dataVec(t, payload, 3*bs)))

	got := make([]byte, 2*bs)
	require.NoError(t, runOp(t, s, rec, dsal.OpRead, dataVec(t, got, 3*bs)))
	assert.Equal(t, payload, got)
}

// TestHolesReadAsZeroes: sparse files never surface ENOENT; unwritten
// ranges come back zero-filled, before and past EOF.
func TestHolesReadAsZeroes(t *testing.T) {
	s := newStore(t)
	rec := newOpenObject(t, s)

	block := make([]byte, bs)
	copy(block, []byte{1, 2, 3, 4})
	require.NoError(t, runOp(t, s, rec, dsal.OpWrite, dataVec(t, block, 2*bs)))

	// Hole before the written range.
	got := make([]byte, bs)
	for i := range got {
		got[i] = 0xff
	}
	require.NoError(t, runOp(t, s, rec, dsal.OpRead, dataVec(t, got, 0)))
	assert.Equal(t, make([]byte, bs), got)

	// Range entirely past EOF.
	for i := range got {
		got[i] = 0xff
	}
	require.NoError(t, runOp(t, s, rec, dsal.OpRead, dataVec(t, got, 100*bs)))
	assert.Equal(t, make([]byte, bs), got)
}

func TestFreeZeroesRange(t *testing.T) {
	s := newStore(t)
	rec := newOpenObject(t, s)

	payload := make([]byte, 2*bs)
	for i := range payload {
		payload[i] = 'F'
	}
	require.NoError(t, runOp(t, s, rec, dsal.OpWrite, dataVec(t, payload, 0)))

	vec, err := bufvec.FromExtents([]bufvec.Extent{{Off: 0, Len: bs}})
	require.NoError(t, err)
	require.NoError(t, runOp(t, s, rec, dsal.OpFree, vec))

	got := make([]byte, 2*bs)
	require.NoError(t, runOp(t, s, rec, dsal.OpRead, dataVec(t, got, 0)))

	want := make([]byte, 2*bs)
	copy(want[bs:], payload[:bs])
	assert.Equal(t, want, got)
}

func TestUnalignedExtentRejected(t *testing.T) {
	s := newStore(t)
	rec := newOpenObject(t, s)

	err := runOp(t, s, rec, dsal.OpWrite, dataVec(t, make([]byte, 100), 0))
	assert.True(t, dsal.IsErrno(err, syscall.EINVAL))
}
