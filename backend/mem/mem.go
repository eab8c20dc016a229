// Package mem provides an in-memory dsal backend.
//
// Objects are maps of block index → block, so storage is naturally
// sparse: a block that was never written simply has no entry, and a
// read touching one reports ENOENT the way a hole-exposing object store
// does. That makes the backend a faithful stand-in for testing the
// hole-recovery paths of the façade, not just a toy store.
package mem

import (
	"context"
	"fmt"
	"sync"
	"syscall"

	"github.com/spf13/viper"

	dsal "github.com/Seagate/cortx-dsal"
	"github.com/Seagate/cortx-dsal/backend/internal/asyncop"
	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

// Name is the registry name of this backend.
const Name = "mem"

func init() {
	dsal.RegisterBackend(Name, New())
}

// Store is the backend singleton. One Store serves the whole process;
// per-object state lives in the objects map.
type Store struct {
	mu      sync.RWMutex
	bsize   int64
	objects map[dsal.OID]*object
}

// object is the stored state of one object: its blocks, keyed by index.
type object struct {
	oid dsal.OID

	mu     sync.RWMutex
	blocks map[int64][]byte
}

// memObj is the backend-private record for an open object.
type memObj struct {
	obj *object
}

// memOp is the backend-private record for an IO operation. It owns the
// moved-in vector arrays (released at fini) but borrows the buffers.
type memOp struct {
	aop *asyncop.Op
	vec bufvec.Vec
}

// New creates an unconfigured Store; Init prepares it for use.
func New() *Store {
	return &Store{}
}

// Init implements dsal.Backend.
func (s *Store) Init(cfg *viper.Viper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bsize = int64(dsal.DefaultBlockSize)
	if bs := cfg.GetInt64("dstore.mem.bsize"); bs > 0 {
		s.bsize = bs
	}
	s.objects = make(map[dsal.OID]*object)
	return nil
}

// Fini implements dsal.Backend.
func (s *Store) Fini() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects = nil
	return nil
}

// ObjCreate implements dsal.Backend.
func (s *Store) ObjCreate(ctx context.Context, oid *dsal.OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.objects == nil {
		return dsal.NewError("obj_create", dsal.ErrCodeNotInitialized, "mem backend not initialized")
	}
	if _, ok := s.objects[*oid]; ok {
		return dsal.NewObjectError("obj_create", oid, syscall.EEXIST, "object exists")
	}

	s.objects[*oid] = &object{
		oid:    *oid,
		blocks: make(map[int64][]byte),
	}
	return nil
}

// ObjDelete implements dsal.Backend.
func (s *Store) ObjDelete(ctx context.Context, oid *dsal.OID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[*oid]; !ok {
		return dsal.NewObjectError("obj_delete", oid, syscall.ENOENT, "no such object")
	}

	delete(s.objects, *oid)
	return nil
}

// ObjGetID implements dsal.Backend.
func (s *Store) ObjGetID(oid *dsal.OID) error {
	*oid = dsal.NewOID()
	return nil
}

// ObjOpen implements dsal.Backend.
func (s *Store) ObjOpen(ctx context.Context, oid *dsal.OID) (dsal.BackendObject, error) {
	s.mu.RLock()
	obj, ok := s.objects[*oid]
	s.mu.RUnlock()

	if !ok {
		return nil, dsal.NewObjectError("obj_open", oid, syscall.ENOENT, "no such object")
	}
	return &memObj{obj: obj}, nil
}

// ObjClose implements dsal.Backend.
func (s *Store) ObjClose(rec dsal.BackendObject) error {
	mo, ok := rec.(*memObj)
	if !ok || mo.obj == nil {
		return dsal.NewError("obj_close", dsal.ErrCodeInvalidArgument, "foreign object record")
	}
	mo.obj = nil
	return nil
}

// OpInit implements dsal.Backend.
func (s *Store) OpInit(ctx context.Context, rec dsal.BackendObject, t dsal.OpType,
	vec *bufvec.Vec, complete func(rc error)) (dsal.BackendOp, error) {
	mo, ok := rec.(*memObj)
	if !ok || mo.obj == nil {
		return nil, dsal.NewError("io_op_init", dsal.ErrCodeInvalidArgument, "foreign object record")
	}

	op := &memOp{}
	op.vec.Move(vec)

	obj := mo.obj
	switch t {
	case dsal.OpWrite:
		op.aop = asyncop.New(func() error { return s.execWrite(obj, &op.vec) }, complete)
	case dsal.OpRead:
		op.aop = asyncop.New(func() error { return s.execRead(obj, &op.vec) }, complete)
	case dsal.OpFree:
		op.aop = asyncop.New(func() error { return s.execFree(obj, &op.vec) }, complete)
	default:
		// Hand the arrays back before failing.
		vec.Move(&op.vec)
		return nil, dsal.NewObjectError("io_op_init", &obj.oid, syscall.EINVAL,
			"unsupported op type "+t.String())
	}

	return op, nil
}

// OpSubmit implements dsal.Backend.
func (s *Store) OpSubmit(rec dsal.BackendOp) error {
	op, ok := rec.(*memOp)
	if !ok {
		return dsal.NewError("io_op_submit", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Submit()
}

// OpWait implements dsal.Backend.
func (s *Store) OpWait(rec dsal.BackendOp) error {
	op, ok := rec.(*memOp)
	if !ok {
		return dsal.NewError("io_op_wait", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Wait()
}

// OpFini implements dsal.Backend.
func (s *Store) OpFini(rec dsal.BackendOp) {
	op, ok := rec.(*memOp)
	if !ok {
		return
	}
	op.vec.Fini()
	op.aop.Fini()
}

// ObjGetBSize implements dsal.Backend.
func (s *Store) ObjGetBSize(oid *dsal.OID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.objects == nil {
		return 0, dsal.NewError("get_bsize", dsal.ErrCodeNotInitialized, "mem backend not initialized")
	}
	return s.bsize, nil
}

// checkExtent validates block alignment of one vector element.
func (s *Store) checkExtent(oid *dsal.OID, e bufvec.Extent) error {
	if e.Off%s.bsize != 0 || e.Len%s.bsize != 0 {
		return dsal.NewObjectError("io", oid, syscall.EINVAL,
			fmt.Sprintf("unaligned extent (off=%d len=%d bs=%d)", e.Off, e.Len, s.bsize))
	}
	return nil
}

func (s *Store) execWrite(obj *object, vec *bufvec.Vec) error {
	bs := s.bsize

	obj.mu.Lock()
	defer obj.mu.Unlock()

	for i, e := range vec.Exts {
		if err := s.checkExtent(&obj.oid, e); err != nil {
			return err
		}

		data := vec.Bufs[i]
		for blk := int64(0); blk < e.Len/bs; blk++ {
			stored := make([]byte, bs)
			copy(stored, data[blk*bs:(blk+1)*bs])
			obj.blocks[e.Off/bs+blk] = stored
		}
	}
	return nil
}

func (s *Store) execRead(obj *object, vec *bufvec.Vec) error {
	bs := s.bsize

	obj.mu.RLock()
	defer obj.mu.RUnlock()

	// The whole read fails if any requested block was never written;
	// the store cannot say which. Callers narrow the hole by re-reading
	// block by block.
	for _, e := range vec.Exts {
		if err := s.checkExtent(&obj.oid, e); err != nil {
			return err
		}
		for blk := int64(0); blk < e.Len/bs; blk++ {
			if _, ok := obj.blocks[e.Off/bs+blk]; !ok {
				return dsal.NewObjectError("io", &obj.oid, syscall.ENOENT,
					fmt.Sprintf("unwritten block %d", e.Off/bs+blk))
			}
		}
	}

	for i, e := range vec.Exts {
		data := vec.Bufs[i]
		for blk := int64(0); blk < e.Len/bs; blk++ {
			copy(data[blk*bs:(blk+1)*bs], obj.blocks[e.Off/bs+blk])
		}
	}
	return nil
}

func (s *Store) execFree(obj *object, vec *bufvec.Vec) error {
	bs := s.bsize

	obj.mu.Lock()
	defer obj.mu.Unlock()

	for _, e := range vec.Exts {
		if err := s.checkExtent(&obj.oid, e); err != nil {
			return err
		}
		for blk := int64(0); blk < e.Len/bs; blk++ {
			delete(obj.blocks, e.Off/bs+blk)
		}
	}
	return nil
}

var _ dsal.Backend = (*Store)(nil)
