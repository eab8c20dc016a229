// Package badgerstore provides a persistent dsal backend on BadgerDB.
//
// Layout: one marker key per object plus one key per written block,
// block index big-endian so a prefix scan walks an object in order.
// A read touching a key that does not exist maps to ENOENT — BadgerDB's
// ErrKeyNotFound is exactly the hole surface the façade recovers from.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/spf13/viper"

	dsal "github.com/Seagate/cortx-dsal"
	"github.com/Seagate/cortx-dsal/backend/internal/asyncop"
	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

// Name is the registry name of this backend.
const Name = "badger"

func init() {
	dsal.RegisterBackend(Name, New())
}

// Store is the backend singleton over one Badger database.
type Store struct {
	mu    sync.RWMutex
	db    *badger.DB
	bsize int64
}

// bdgObj is the backend-private record for an open object.
type bdgObj struct {
	oid dsal.OID
}

// bdgOp is the backend-private record for an IO operation.
type bdgOp struct {
	aop *asyncop.Op
	vec bufvec.Vec
}

// New creates an unconfigured Store; Init opens the database.
func New() *Store {
	return &Store{}
}

// Init implements dsal.Backend. Configuration subtree:
//
//	dstore.badger.dir   — database directory (required)
//	dstore.badger.bsize — block size in bytes (default 4096)
func (s *Store) Init(cfg *viper.Viper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := cfg.GetString("dstore.badger.dir")
	if dir == "" {
		return dsal.NewError("init", dsal.ErrCodeInvalidArgument,
			"dstore.badger.dir not specified")
	}

	s.bsize = int64(dsal.DefaultBlockSize)
	if bs := cfg.GetInt64("dstore.badger.bsize"); bs > 0 {
		s.bsize = bs
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return dsal.WrapError("init", fmt.Errorf("open badger at %s: %w", dir, err))
	}

	s.db = db
	return nil
}

// Fini implements dsal.Backend.
func (s *Store) Fini() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return dsal.WrapError("fini", err)
	}
	return nil
}

// keyMarker is the existence marker for an object.
func keyMarker(oid *dsal.OID) []byte {
	k := make([]byte, 0, 18)
	k = append(k, 'o', '/')
	return append(k, oid.Bytes()...)
}

// keyBlock addresses one block of an object.
func keyBlock(oid *dsal.OID, blk int64) []byte {
	k := make([]byte, 0, 26)
	k = append(k, 'b', '/')
	k = append(k, oid.Bytes()...)
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(blk))
	return append(k, idx[:]...)
}

// blockPrefix is the common prefix of all block keys of an object.
func blockPrefix(oid *dsal.OID) []byte {
	k := make([]byte, 0, 18)
	k = append(k, 'b', '/')
	return append(k, oid.Bytes()...)
}

func (s *Store) database(op string) (*badger.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, dsal.NewError(op, dsal.ErrCodeNotInitialized, "badger backend not initialized")
	}
	return s.db, nil
}

// ObjCreate implements dsal.Backend.
func (s *Store) ObjCreate(ctx context.Context, oid *dsal.OID) error {
	db, err := s.database("obj_create")
	if err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyMarker(oid))
		if err == nil {
			return dsal.NewObjectError("obj_create", oid, syscall.EEXIST, "object exists")
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(keyMarker(oid), nil)
	})
	if err != nil {
		return dsal.WrapError("obj_create", err)
	}
	return nil
}

// ObjDelete implements dsal.Backend. The marker and every block key are
// removed in one transaction.
func (s *Store) ObjDelete(ctx context.Context, oid *dsal.OID) error {
	db, err := s.database("obj_delete")
	if err != nil {
		return err
	}

	err = db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyMarker(oid)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return dsal.NewObjectError("obj_delete", oid, syscall.ENOENT, "no such object")
			}
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = blockPrefix(oid)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		return txn.Delete(keyMarker(oid))
	})
	if err != nil {
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
	db, err := s.database("obj_open")
	if err != nil {
		return nil, err
	}

	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyMarker(oid))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, dsal.NewObjectError("obj_open", oid, syscall.ENOENT, "no such object")
	}
	if err != nil {
		return nil, dsal.WrapError("obj_open", err)
	}

	return &bdgObj{oid: *oid}, nil
}

// ObjClose implements dsal.Backend.
func (s *Store) ObjClose(rec dsal.BackendObject) error {
	if _, ok := rec.(*bdgObj); !ok {
		return dsal.NewError("obj_close", dsal.ErrCodeInvalidArgument, "foreign object record")
	}
	return nil
}

// OpInit implements dsal.Backend.
func (s *Store) OpInit(ctx context.Context, rec dsal.BackendObject, t dsal.OpType,
	vec *bufvec.Vec, complete func(rc error)) (dsal.BackendOp, error) {
	bo, ok := rec.(*bdgObj)
	if !ok {
		return nil, dsal.NewError("io_op_init", dsal.ErrCodeInvalidArgument, "foreign object record")
	}

	op := &bdgOp{}
	op.vec.Move(vec)

	oid := bo.oid
	switch t {
	case dsal.OpWrite:
		op.aop = asyncop.New(func() error { return s.execWrite(&oid, &op.vec) }, complete)
	case dsal.OpRead:
		op.aop = asyncop.New(func() error { return s.execRead(&oid, &op.vec) }, complete)
	case dsal.OpFree:
		op.aop = asyncop.New(func() error { return s.execFree(&oid, &op.vec) }, complete)
	default:
		vec.Move(&op.vec)
		return nil, dsal.NewObjectError("io_op_init", &bo.oid, syscall.EINVAL,
			"unsupported op type "+t.String())
	}

	return op, nil
}

// OpSubmit implements dsal.Backend.
func (s *Store) OpSubmit(rec dsal.BackendOp) error {
	op, ok := rec.(*bdgOp)
	if !ok {
		return dsal.NewError("io_op_submit", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Submit()
}

// OpWait implements dsal.Backend.
func (s *Store) OpWait(rec dsal.BackendOp) error {
	op, ok := rec.(*bdgOp)
	if !ok {
		return dsal.NewError("io_op_wait", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Wait()
}

// OpFini implements dsal.Backend.
func (s *Store) OpFini(rec dsal.BackendOp) {
	op, ok := rec.(*bdgOp)
	if !ok {
		return
	}
	op.vec.Fini()
	op.aop.Fini()
}

// ObjGetBSize implements dsal.Backend.
func (s *Store) ObjGetBSize(oid *dsal.OID) (int64, error) {
	if _, err := s.database("get_bsize"); err != nil {
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

func (s *Store) execWrite(oid *dsal.OID, vec *bufvec.Vec) error {
	db, err := s.database("io")
	if err != nil {
		return err
	}
	bs := s.bsize

	err = db.Update(func(txn *badger.Txn) error {
		for i, e := range vec.Exts {
			if err := s.checkExtent(oid, e); err != nil {
				return err
			}
			data := vec.Bufs[i]
			for blk := int64(0); blk < e.Len/bs; blk++ {
				val := make([]byte, bs)
				copy(val, data[blk*bs:(blk+1)*bs])
				if err := txn.Set(keyBlock(oid, e.Off/bs+blk), val); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return dsal.WrapError("io", err)
	}
	return nil
}

func (s *Store) execRead(oid *dsal.OID, vec *bufvec.Vec) error {
	db, err := s.database("io")
	if err != nil {
		return err
	}
	bs := s.bsize

	err = db.View(func(txn *badger.Txn) error {
		for i, e := range vec.Exts {
			if err := s.checkExtent(oid, e); err != nil {
				return err
			}
			data := vec.Bufs[i]
			for blk := int64(0); blk < e.Len/bs; blk++ {
				item, err := txn.Get(keyBlock(oid, e.Off/bs+blk))
				if errors.Is(err, badger.ErrKeyNotFound) {
					return dsal.NewObjectError("io", oid, syscall.ENOENT,
						fmt.Sprintf("unwritten block %d", e.Off/bs+blk))
				}
				if err != nil {
					return err
				}

				dst := data[blk*bs : (blk+1)*bs]
				if err := item.Value(func(val []byte) error {
					copy(dst, val)
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return dsal.WrapError("io", err)
	}
	return nil
}

func (s *Store) execFree(oid *dsal.OID, vec *bufvec.Vec) error {
	db, err := s.database("io")
	if err != nil {
		return err
	}
	bs := s.bsize

	err = db.Update(func(txn *badger.Txn) error {
		for _, e := range vec.Exts {
			if err := s.checkExtent(oid, e); err != nil {
				return err
			}
			for blk := int64(0); blk < e.Len/bs; blk++ {
				if err := txn.Delete(keyBlock(oid, e.Off/bs+blk)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return dsal.WrapError("io", err)
	}
	return nil
}

var _ dsal.Backend = (*Store)(nil)
