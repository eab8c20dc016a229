package dsal

import (
	"context"
	"sync"

	"github.com/Seagate/cortx-dsal/internal/bufvec"
	"github.com/Seagate/cortx-dsal/internal/logging"
	"github.com/Seagate/cortx-dsal/internal/perfc"
)

// Object is an open, in-memory representation of a stored object. It is
// produced by ObjOpen and consumed by Close; a closed handle must not be
// reused. The handle must outlive every IO operation it spawned until
// those operations reach a terminal state — Close enforces that by
// blocking on the in-flight set.
type Object struct {
	ds  *DataStore
	oid OID
	rec BackendObject

	// In-flight operations submitted through this handle.
	inflight sync.WaitGroup
}

// ID returns the identifier the object was opened with.
func (o *Object) ID() *OID {
	return &o.oid
}

// Store returns the DataStore that owns dispatch for this handle.
func (o *Object) Store() *DataStore {
	return o.ds
}

// Close releases the handle. It blocks until every operation launched
// through the handle is terminal, providing open-to-close consistency
// for the backend. Closing an already-closed handle is undefined.
func (o *Object) Close() error {
	span := perfc.Begin(perfc.OpObjClose)

	if o == nil || o.ds == nil {
		err := NewError("obj_close", ErrCodeInvalidArgument, "nil object")
		span.End(err)
		return err
	}

	logging.Debug("close waiting for in-flight ops", "oid", &o.oid)
	o.inflight.Wait()

	err := o.ds.ops.ObjClose(o.rec)
	o.rec = nil

	logging.Debug("close", "oid", &o.oid, "err", err)
	span.End(err)
	return err
}

// OpCallback receives completion notifications. It is invoked exactly
// once per operation, with the same rc Wait returns; nil rc means
// STABLE, non-nil FAILED. Callbacks may fire from a backend-owned
// completion context and must not re-enter the façade.
type OpCallback func(cbCtx any, op *IOOp, rc error)

// IOOp is a one-shot asynchronous IO operation. Lifecycle:
// OpInit → Submit → (executed) → Wait → Fini. Wait is the only blocking
// point; Fini is valid only once the operation is terminal (or was
// never submitted).
type IOOp struct {
	obj   *Object
	typ   OpType
	cb    OpCallback
	cbCtx any

	rec       BackendOp
	submitted bool
}

// Type returns the operation kind.
func (op *IOOp) Type() OpType {
	return op.typ
}

// Object returns the handle the operation is bound to.
func (op *IOOp) Object() *Object {
	return op.obj
}

// OpInit allocates an operation bound to this handle. The vector is
// moved into the operation: vec is zeroed and must not be reused, though
// the caller still owns (and must keep alive) the underlying buffers
// until the operation is terminal. Only WRITE, READ and FREE types are
// accepted.
func (o *Object) OpInit(ctx context.Context, t OpType, vec *bufvec.Vec,
	cb OpCallback, cbCtx any) (*IOOp, error) {
	span := perfc.Begin(perfc.OpIOInit)

	if o == nil || o.ds == nil {
		err := NewError("io_op_init", ErrCodeInvalidArgument, "nil object")
		span.End(err)
		return nil, err
	}
	if !t.valid() {
		err := NewObjectError("io_op_init", &o.oid, mapCodeToErrno(ErrCodeInvalidArgument),
			"unsupported op type "+t.String())
		span.End(err)
		return nil, err
	}
	if vec == nil || !vec.Invariant() {
		err := NewObjectError("io_op_init", &o.oid, mapCodeToErrno(ErrCodeInvalidArgument),
			"malformed io vector")
		span.End(err)
		return nil, err
	}
	if t != OpFree && !vec.HasData() {
		err := NewObjectError("io_op_init", &o.oid, mapCodeToErrno(ErrCodeInvalidArgument),
			"data-less vector for data op")
		span.End(err)
		return nil, err
	}

	op := &IOOp{
		obj:   o,
		typ:   t,
		cb:    cb,
		cbCtx: cbCtx,
	}

	// The completion hook runs once per submitted operation, on the
	// EXECUTED edge, before Wait observes the terminal state.
	complete := func(rc error) {
		if op.cb != nil {
			op.cb(op.cbCtx, op, rc)
		}
		o.inflight.Done()
	}

	rec, err := o.ds.ops.OpInit(ctx, o.rec, t, vec, complete)
	if err != nil {
		err = WrapError("io_op_init", err)
		span.End(err)
		return nil, err
	}
	op.rec = rec

	span.End(nil)
	return op, nil
}

// Submit starts execution. Submission itself does not fail; errors
// surface at completion and are returned by Wait.
func (op *IOOp) Submit() error {
	span := perfc.Begin(perfc.OpIOSubmit)

	if op == nil || op.rec == nil || op.submitted {
		err := NewError("io_op_submit", ErrCodeInvalidArgument, "bad operation state")
		span.End(err)
		return err
	}

	op.submitted = true
	op.obj.inflight.Add(1)
	if err := op.obj.ds.ops.OpSubmit(op.rec); err != nil {
		// Defensive: the contract makes submission infallible, but a
		// backend that does fail here never completes the op.
		op.obj.inflight.Done()
		err = WrapError("io_op_submit", err)
		span.End(err)
		return err
	}

	span.End(nil)
	return nil
}

// Wait blocks until the operation is terminal and returns its final rc.
func (op *IOOp) Wait() error {
	span := perfc.Begin(perfc.OpIOWait)

	if op == nil || op.rec == nil || !op.submitted {
		err := NewError("io_op_wait", ErrCodeInvalidArgument, "bad operation state")
		span.End(err)
		return err
	}

	err := op.obj.ds.ops.OpWait(op.rec)

	logging.Debug("wait", "oid", &op.obj.oid, "type", op.typ, "err", err)
	span.End(err)
	return err
}

// Fini releases the operation's backend resources. The operation must be
// terminal (or never submitted); finalizing an in-flight operation is
// undefined.
func (op *IOOp) Fini() {
	span := perfc.Begin(perfc.OpIOFini)

	if op == nil || op.rec == nil {
		span.End(nil)
		return
	}

	op.obj.ds.ops.OpFini(op.rec)
	op.rec = nil

	span.End(nil)
}

// initAndSubmit builds, submits and hands back an operation; on any
// failure after the operation materialized, it is finalized before the
// error is returned.
func (o *Object) initAndSubmit(ctx context.Context, t OpType, vec *bufvec.Vec) (*IOOp, error) {
	op, err := o.OpInit(ctx, t, vec, nil, nil)
	if err != nil {
		return nil, err
	}

	if err = op.Submit(); err != nil {
		op.Fini()
		return nil, err
	}

	return op, nil
}

// Write submits a vectored WRITE. The vector is moved into the returned
// operation; buffers stay caller-owned and must outlive it.
func (o *Object) Write(ctx context.Context, vec *bufvec.Vec) (*IOOp, error) {
	op, err := o.initAndSubmit(ctx, OpWrite, vec)
	logging.Debug("write submitted", "oid", &o.oid, "err", err)
	return op, err
}

// Read submits a vectored READ into the vector's buffers.
func (o *Object) Read(ctx context.Context, vec *bufvec.Vec) (*IOOp, error) {
	op, err := o.initAndSubmit(ctx, OpRead, vec)
	logging.Debug("read submitted", "oid", &o.oid, "err", err)
	return op, err
}

// Free submits a data-less FREE over the given extents.
func (o *Object) Free(ctx context.Context, exts []bufvec.Extent) (*IOOp, error) {
	vec, err := bufvec.FromExtents(exts)
	if err != nil {
		return nil, WrapError("io_op_free", err)
	}

	op, err := o.initAndSubmit(ctx, OpFree, vec)
	logging.Debug("free submitted", "oid", &o.oid, "err", err)
	return op, err
}
