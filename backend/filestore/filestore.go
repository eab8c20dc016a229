// Package filestore provides a dsal backend storing each object as a
// sparse file under a root directory.
//
// The filesystem gives hole semantics for free: reads of never-written
// ranges come back zeroed, so this backend never reports ENOENT from a
// read and the façade's hole recovery never triggers. FREE punches
// holes where the platform supports it and zero-fills elsewhere.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	dsal "github.com/Seagate/cortx-dsal"
	"github.com/Seagate/cortx-dsal/backend/internal/asyncop"
	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

// Name is the registry name of this backend.
const Name = "file"

func init() {
	dsal.RegisterBackend(Name, New())
}

// Store is the backend singleton over one directory tree.
type Store struct {
	mu    sync.RWMutex
	root  string
	bsize int64
}

// fileObj is the backend-private record for an open object.
type fileObj struct {
	oid dsal.OID
	fd  int
}

// fileOp is the backend-private record for an IO operation.
type fileOp struct {
	aop *asyncop.Op
	vec bufvec.Vec
}

// New creates an unconfigured Store; Init prepares the root directory.
func New() *Store {
	return &Store{}
}

// Init implements dsal.Backend. Configuration subtree:
//
//	dstore.file.root  — object directory (required)
//	dstore.file.bsize — block size in bytes (default 4096)
func (s *Store) Init(cfg *viper.Viper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := cfg.GetString("dstore.file.root")
	if root == "" {
		return dsal.NewError("init", dsal.ErrCodeInvalidArgument,
			"dstore.file.root not specified")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return dsal.WrapError("init", fmt.Errorf("create root %s: %w", root, err))
	}

	s.root = root
	s.bsize = int64(dsal.DefaultBlockSize)
	if bs := cfg.GetInt64("dstore.file.bsize"); bs > 0 {
		s.bsize = bs
	}
	return nil
}

// Fini implements dsal.Backend.
func (s *Store) Fini() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.root = ""
	return nil
}

func (s *Store) path(oid *dsal.OID) string {
	return filepath.Join(s.root, oid.String())
}

func (s *Store) checkInit(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.root == "" {
		return dsal.NewError(op, dsal.ErrCodeNotInitialized, "file backend not initialized")
	}
	return nil
}

// ObjCreate implements dsal.Backend.
func (s *Store) ObjCreate(ctx context.Context, oid *dsal.OID) error {
	if err := s.checkInit("obj_create"); err != nil {
		return err
	}

	fd, err := os.OpenFile(s.path(oid), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return dsal.NewObjectError("obj_create", oid, syscall.EEXIST, "object exists")
		}
		return dsal.WrapError("obj_create", err)
	}
	return fd.Close()
}

// ObjDelete implements dsal.Backend.
func (s *Store) ObjDelete(ctx context.Context, oid *dsal.OID) error {
	if err := s.checkInit("obj_delete"); err != nil {
		return err
	}

	if err := os.Remove(s.path(oid)); err != nil {
		if os.IsNotExist(err) {
			return dsal.NewObjectError("obj_delete", oid, syscall.ENOENT, "no such object")
		}
		return dsal.WrapError("obj_delete", err)
	}
	return nil
}

// ObjGetID implements dsal.Backend.
func (s *Store) ObjGetID(oid *dsal.OID) error {
	*oid = dsal.NewOID()
	return nil
}

// ObjOpen implements dsal.Backend.
func (s *Store) ObjOpen(ctx context.Context, oid *dsal.OID) (dsal.BackendObject, error) {
	if err := s.checkInit("obj_open"); err != nil {
		return nil, err
	}

	fd, err := unix.Open(s.path(oid), unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, dsal.NewObjectError("obj_open", oid, syscall.ENOENT, "no such object")
		}
		return nil, dsal.WrapError("obj_open", err)
	}

	return &fileObj{oid: *oid, fd: fd}, nil
}

// ObjClose implements dsal.Backend.
func (s *Store) ObjClose(rec dsal.BackendObject) error {
	fo, ok := rec.(*fileObj)
	if !ok || fo.fd < 0 {
		return dsal.NewError("obj_close", dsal.ErrCodeInvalidArgument, "foreign object record")
	}

	err := unix.Close(fo.fd)
	fo.fd = -1
	if err != nil {
		return dsal.WrapError("obj_close", err)
	}
	return nil
}

// OpInit implements dsal.Backend.
func (s *Store) OpInit(ctx context.Context, rec dsal.BackendObject, t dsal.OpType,
	vec *bufvec.Vec, complete func(rc error)) (dsal.BackendOp, error) {
	fo, ok := rec.(*fileObj)
	if !ok || fo.fd < 0 {
		return nil, dsal.NewError("io_op_init", dsal.ErrCodeInvalidArgument, "foreign object record")
	}

	op := &fileOp{}
	op.vec.Move(vec)

	switch t {
	case dsal.OpWrite:
		op.aop = asyncop.New(func() error { return s.execWrite(fo, &op.vec) }, complete)
	case dsal.OpRead:
		op.aop = asyncop.New(func() error { return s.execRead(fo, &op.vec) }, complete)
	case dsal.OpFree:
		op.aop = asyncop.New(func() error { return s.execFree(fo, &op.vec) }, complete)
	default:
		vec.Move(&op.vec)
		return nil, dsal.NewObjectError("io_op_init", &fo.oid, syscall.EINVAL,
			"unsupported op type "+t.String())
	}

	return op, nil
}

// OpSubmit implements dsal.Backend.
func (s *Store) OpSubmit(rec dsal.BackendOp) error {
	op, ok := rec.(*fileOp)
	if !ok {
		return dsal.NewError("io_op_submit", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Submit()
}

// OpWait implements dsal.Backend.
func (s *Store) OpWait(rec dsal.BackendOp) error {
	op, ok := rec.(*fileOp)
	if !ok {
		return dsal.NewError("io_op_wait", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Wait()
}

// OpFini implements dsal.Backend.
func (s *Store) OpFini(rec dsal.BackendOp) {
	op, ok := rec.(*fileOp)
	if !ok {
		return
	}
	op.vec.Fini()
	op.aop.Fini()
}

// ObjGetBSize implements dsal.Backend.
func (s *Store) ObjGetBSize(oid *dsal.OID) (int64, error) {
	if err := s.checkInit("get_bsize"); err != nil {
		return 0, err
	}
	return s.bsize, nil
}

func (s *Store) checkExtent(oid *dsal.OID, e bufvec.Extent) error {
	if e.Off%s.bsize != 0 || e.Len%s.bsize != 0 {
		return dsal.NewObjectError("io", oid, syscall.EINVAL,
			fmt.Sprintf("unaligned extent (off=%d len=%d bs=%d)", e.Off, e.Len, s.bsize))
	}
	return nil
}

func (s *Store) execWrite(fo *fileObj, vec *bufvec.Vec) error {
	for i, e := range vec.Exts {
		if err := s.checkExtent(&fo.oid, e); err != nil {
			return err
		}

		data := vec.Bufs[i]
		off := e.Off
		for len(data) > 0 {
			n, err := unix.Pwrite(fo.fd, data, off)
			if err != nil {
				return dsal.WrapError("io", err)
			}
			data = data[n:]
			off += int64(n)
		}
	}
	return nil
}

func (s *Store) execRead(fo *fileObj, vec *bufvec.Vec) error {
	for i, e := range vec.Exts {
		if err := s.checkExtent(&fo.oid, e); err != nil {
			return err
		}

		data := vec.Bufs[i]
		off := e.Off
		for len(data) > 0 {
			n, err := unix.Pread(fo.fd, data, off)
			if err != nil {
				return dsal.WrapError("io", err)
			}
			if n == 0 {
				// Past EOF: the range is a hole and reads as zeroes.
				for j := range data {
					data[j] = 0
				}
				break
			}
			data = data[n:]
			off += int64(n)
		}
	}
	return nil
}

func (s *Store) execFree(fo *fileObj, vec *bufvec.Vec) error {
	for _, e := range vec.Exts {
		if err := s.checkExtent(&fo.oid, e); err != nil {
			return err
		}
		if err := punchHole(fo.fd, e.Off, e.Len); err != nil {
			return dsal.WrapError("io", err)
		}
	}
	return nil
}

var _ dsal.Backend = (*Store)(nil)
