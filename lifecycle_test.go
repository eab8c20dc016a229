package dsal_test

import (
	"context"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dsal "github.com/Seagate/cortx-dsal"
	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

func singleVec(t *testing.T, data []byte, off int64) *bufvec.Vec {
	t.Helper()
	buf, err := bufvec.NewBuf(data, off)
	require.NoError(t, err)
	vec, err := bufvec.FromBuf(buf)
	require.NoError(t, err)
	return vec
}

// TestOpLifecycle walks one WRITE through the full init/submit/wait/fini
// sequence by hand, then reads it back through Read, Wait and Fini.
func TestOpLifecycle(t *testing.T) {
	ctx := context.Background()
	obj := newTestObject(t)

	payload := fill(testBSize, 'W')

	wop, err := obj.OpInit(ctx, dsal.OpWrite, singleVec(t, payload, 0), nil, nil)
	require.NoError(t, err)
	require.Equal(t, dsal.OpWrite, wop.Type())
	require.Same(t, obj, wop.Object())

	require.NoError(t, wop.Submit())
	require.NoError(t, wop.Wait())
	wop.Fini()

	got := make([]byte, testBSize)
	rop, err := obj.Read(ctx, singleVec(t, got, 0))
	require.NoError(t, err)
	require.NoError(t, rop.Wait())
	rop.Fini()

	assert.Equal(t, payload, got)
}

// TestOpInitRejectsBadType checks the invalid-argument surface of op
// initialization.
func TestOpInitRejectsBadType(t *testing.T) {
	ctx := context.Background()
	obj := newTestObject(t)

	_, err := obj.OpInit(ctx, dsal.OpType(42), singleVec(t, fill(testBSize, 'x'), 0), nil, nil)
	assert.True(t, dsal.IsErrno(err, syscall.EINVAL))

	_, err = obj.OpInit(ctx, dsal.OpWrite, nil, nil, nil)
	assert.True(t, dsal.IsErrno(err, syscall.EINVAL))
}

// TestOpCallback verifies the completion callback fires exactly once,
// with the caller's context and the rc Wait reports, for success and
// failure alike.
func TestOpCallback(t *testing.T) {
	ctx := context.Background()
	obj := newTestObject(t)

	t.Run("stable", func(t *testing.T) {
		var calls atomic.Int32
		var cbRC error
		type tag struct{ hit bool }
		myCtx := &tag{}

		vec := singleVec(t, fill(testBSize, 'W'), 0)
		op, err := obj.OpInit(ctx, dsal.OpWrite, vec,
			func(cbCtx any, cop *dsal.IOOp, rc error) {
				calls.Add(1)
				cbCtx.(*tag).hit = true
				cbRC = rc
			}, myCtx)
		require.NoError(t, err)

		require.NoError(t, op.Submit())
		require.NoError(t, op.Wait())
		op.Fini()

		assert.Equal(t, int32(1), calls.Load())
		assert.True(t, myCtx.hit)
		assert.NoError(t, cbRC)
	})

	t.Run("failed", func(t *testing.T) {
		var calls atomic.Int32
		var cbRC error

		// An aligned single-block READ of a hole fails with ENOENT at
		// the raw op level.
		vec := singleVec(t, make([]byte, testBSize), 1024*1024*1024)
		op, err := obj.OpInit(ctx, dsal.OpRead, vec,
			func(cbCtx any, cop *dsal.IOOp, rc error) {
				calls.Add(1)
				cbRC = rc
			}, nil)
		require.NoError(t, err)

		require.NoError(t, op.Submit())
		err = op.Wait()
		op.Fini()

		assert.True(t, dsal.IsErrno(err, syscall.ENOENT))
		assert.Equal(t, int32(1), calls.Load())
		assert.True(t, dsal.IsErrno(cbRC, syscall.ENOENT))
	})
}

// TestOpInitMovesVector: after init the caller's vector is zeroed, and
// finalizing it is a harmless no-op on the moved arrays.
func TestOpInitMovesVector(t *testing.T) {
	ctx := context.Background()
	obj := newTestObject(t)

	vec := singleVec(t, fill(testBSize, 'M'), 0)
	op, err := obj.OpInit(ctx, dsal.OpWrite, vec, nil, nil)
	require.NoError(t, err)

	assert.Zero(t, vec.Nr())
	assert.False(t, vec.HasData())
	vec.Fini()

	require.NoError(t, op.Submit())
	require.NoError(t, op.Wait())
	op.Fini()

	expectRead(t, obj, 0, testBSize, fill(testBSize, 'M'))
}

// TestFreeOp writes two blocks, frees the first, and reads it back as a
// hole.
func TestFreeOp(t *testing.T) {
	ctx := context.Background()
	obj := newTestObject(t)

	require.NoError(t, obj.PWrite(ctx, 0, testBSize, fill(2*testBSize, 'F')))

	fop, err := obj.Free(ctx, []bufvec.Extent{{Off: 0, Len: testBSize}})
	require.NoError(t, err)
	require.NoError(t, fop.Wait())
	fop.Fini()

	want := make([]byte, 2*testBSize)
	copy(want[testBSize:], fill(testBSize, 'F'))
	expectRead(t, obj, 0, 2*testBSize, want)
}

// TestCloseWaitsForInflight submits a burst of writes and closes the
// handle without waiting on them first: close must block until all are
// terminal, so every callback has fired by the time it returns.
func TestCloseWaitsForInflight(t *testing.T) {
	ctx := context.Background()

	var oid dsal.OID
	require.NoError(t, testStore.GetNewOID(&oid))
	require.NoError(t, testStore.ObjCreate(ctx, &oid))
	t.Cleanup(func() {
		require.NoError(t, testStore.ObjDelete(ctx, &oid))
	})

	obj, err := testStore.ObjOpen(ctx, &oid)
	require.NoError(t, err)

	const burst = 16
	var completed atomic.Int32
	ops := make([]*dsal.IOOp, 0, burst)

	for i := 0; i < burst; i++ {
		vec := singleVec(t, fill(testBSize, byte('a'+i)), int64(i)*testBSize)
		op, err := obj.OpInit(ctx, dsal.OpWrite, vec,
			func(cbCtx any, cop *dsal.IOOp, rc error) {
				completed.Add(1)
			}, nil)
		require.NoError(t, err)
		require.NoError(t, op.Submit())
		ops = append(ops, op)
	}

	require.NoError(t, obj.Close())
	assert.Equal(t, int32(burst), completed.Load())

	for _, op := range ops {
		require.NoError(t, op.Wait())
		op.Fini()
	}
}

// TestObjectLifecycle covers create/open/close/delete status codes.
func TestObjectLifecycle(t *testing.T) {
	ctx := context.Background()

	var oid dsal.OID
	require.NoError(t, testStore.GetNewOID(&oid))

	// Opening before creation fails.
	_, err := testStore.ObjOpen(ctx, &oid)
	assert.True(t, dsal.IsErrno(err, syscall.ENOENT))

	require.NoError(t, testStore.ObjCreate(ctx, &oid))

	// Double create collides.
	assert.True(t, dsal.IsErrno(testStore.ObjCreate(ctx, &oid), syscall.EEXIST))

	obj, err := testStore.ObjOpen(ctx, &oid)
	require.NoError(t, err)
	require.Equal(t, oid, *obj.ID())
	require.Same(t, testStore, obj.Store())
	require.NoError(t, obj.Close())

	require.NoError(t, testStore.ObjDelete(ctx, &oid))

	// Deleting again reports the miss back to the caller.
	assert.True(t, dsal.IsErrno(testStore.ObjDelete(ctx, &oid), syscall.ENOENT))
}

// TestGetBSize sanity-checks the configured block size surface.
func TestGetBSize(t *testing.T) {
	var oid dsal.OID
	require.NoError(t, testStore.GetNewOID(&oid))

	bs, err := testStore.GetBSize(&oid)
	require.NoError(t, err)
	assert.Equal(t, int64(testBSize), bs)
}

// TestGetNewOIDUnique allocates a handful of ids and expects no
// collisions.
func TestGetNewOIDUnique(t *testing.T) {
	seen := make(map[dsal.OID]bool)
	for i := 0; i < 100; i++ {
		var oid dsal.OID
		require.NoError(t, testStore.GetNewOID(&oid))
		require.False(t, seen[oid], "duplicate oid %s", oid)
		seen[oid] = true
	}
}

// TestGetSingleton: the initialized store is reachable process-wide.
func TestGetSingleton(t *testing.T) {
	assert.Same(t, testStore, dsal.Get())
	assert.Equal(t, "mem", testStore.Type())
}

// TestReinitRejected: a second Init without Fini is an error.
func TestReinitRejected(t *testing.T) {
	v := viper.New()
	v.Set("dstore.type", "mem")

	_, err := dsal.Init(v, 0)
	assert.True(t, dsal.IsCode(err, dsal.ErrCodeInvalidArgument))
}
