// Package dsal is a data store abstraction layer: a uniform
// object-storage façade over pluggable block-oriented backends.
//
// The façade exposes initialization/finalization of the store, creation
// and removal of objects, open/close state management, asynchronous
// vectored IO operations, and positional read/write that translates
// arbitrary byte ranges onto the block-aligned multi-block IO the
// backend accepts.
//
// The layer does not synchronize concurrent mutators of the same
// object: positional writes read-modify-write partial edge blocks
// without locking, so racing writers on one handle are undefined
// behavior. That is deliberate — some consumers (object servers, NFS
// gateways) bring their own consistency policy, and it belongs above
// this layer.
package dsal

import (
	"context"
	"sync"
	"syscall"

	"github.com/spf13/viper"

	"github.com/Seagate/cortx-dsal/internal/logging"
	"github.com/Seagate/cortx-dsal/internal/perfc"
)

// DataStore is the process-wide handle to the active backend. It is
// created once by Init and destroyed by Fini; every object operation
// dispatches through it.
type DataStore struct {
	typ   string
	cfg   *viper.Viper
	flags int
	ops   Backend
}

var (
	globalMu sync.Mutex
	global   *DataStore
)

// Get returns the initialized singleton, or nil before Init/after Fini.
func Get() *DataStore {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// Init selects a backend by the "dstore.type" configuration key,
// initializes it, and binds the process-wide DataStore to it. It is an
// error to call Init twice without an intervening Fini.
func Init(cfg *viper.Viper, flags int) (*DataStore, error) {
	span := perfc.Begin(perfc.OpInit)

	name, ops, err := lookupBackend(cfg)
	if err != nil {
		span.End(err)
		return nil, err
	}

	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		err = NewError("init", ErrCodeInvalidArgument, "datastore already initialized")
		span.End(err)
		return nil, err
	}

	if err = ops.Init(cfg); err != nil {
		err = WrapError("init", err)
		span.End(err)
		return nil, err
	}

	global = &DataStore{
		typ:   name,
		cfg:   cfg,
		flags: flags,
		ops:   ops,
	}

	logging.Info("datastore initialized", "type", name)
	span.End(nil)
	return global, nil
}

// Fini tears down the backend and releases the singleton. Any operation
// on the DataStore after Fini is an error.
func (ds *DataStore) Fini() error {
	span := perfc.Begin(perfc.OpFini)

	if err := ds.valid("fini"); err != nil {
		span.End(err)
		return err
	}

	err := ds.ops.Fini()
	ds.ops = nil

	globalMu.Lock()
	if global == ds {
		global = nil
	}
	globalMu.Unlock()

	logging.Info("datastore finalized", "type", ds.typ)
	span.End(err)
	return err
}

// Type returns the name of the active backend.
func (ds *DataStore) Type() string {
	return ds.typ
}

// valid guards dispatch against a nil or torn-down DataStore.
func (ds *DataStore) valid(op string) error {
	if ds == nil || ds.ops == nil {
		return NewError(op, ErrCodeNotInitialized, "")
	}
	return nil
}

// ObjCreate materializes a new object under oid.
func (ds *DataStore) ObjCreate(ctx context.Context, oid *OID) error {
	span := perfc.Begin(perfc.OpObjCreate)

	err := ds.valid("obj_create")
	if err == nil && oid == nil {
		err = NewError("obj_create", ErrCodeInvalidArgument, "nil oid")
	}
	if err == nil {
		err = ds.ops.ObjCreate(ctx, oid)
	}

	logging.Debug("create", "oid", oid, "err", err)
	span.End(err)
	return err
}

// ObjDelete removes the object under oid. A missing object is reported
// back to the caller as ENOENT and logged as a warning here: upper
// layers commonly race deletion against their own cleanup and want to
// decide the severity themselves.
func (ds *DataStore) ObjDelete(ctx context.Context, oid *OID) error {
	span := perfc.Begin(perfc.OpObjDelete)

	err := ds.valid("obj_delete")
	if err == nil && oid == nil {
		err = NewError("obj_delete", ErrCodeInvalidArgument, "nil oid")
	}
	if err == nil {
		err = ds.ops.ObjDelete(ctx, oid)
		if IsErrno(err, syscall.ENOENT) {
			logging.Warn("delete of missing object", "oid", oid)
		}
	}

	logging.Debug("delete", "oid", oid, "err", err)
	span.End(err)
	return err
}

// GetNewOID allocates a fresh object identifier into oid.
func (ds *DataStore) GetNewOID(oid *OID) error {
	span := perfc.Begin(perfc.OpObjGetID)

	err := ds.valid("obj_get_id")
	if err == nil && oid == nil {
		err = NewError("obj_get_id", ErrCodeInvalidArgument, "nil oid")
	}
	if err == nil {
		err = ds.ops.ObjGetID(oid)
	}

	span.End(err)
	return err
}

// ObjOpen prepares an object for IO and returns its open handle. On any
// failure after the backend materialized a record, the record is closed
// before the error is returned.
func (ds *DataStore) ObjOpen(ctx context.Context, oid *OID) (*Object, error) {
	span := perfc.Begin(perfc.OpObjOpen)

	if err := ds.valid("obj_open"); err != nil {
		span.End(err)
		return nil, err
	}
	if oid == nil {
		err := NewError("obj_open", ErrCodeInvalidArgument, "nil oid")
		span.End(err)
		return nil, err
	}

	rec, err := ds.ops.ObjOpen(ctx, oid)
	if err != nil {
		err = WrapError("obj_open", err)
		logging.Debug("open", "oid", oid, "err", err)
		span.End(err)
		return nil, err
	}

	// Ownership of the record transfers to the handle here; a handle
	// that fails to materialize from this point on must close it.
	obj := &Object{
		ds:  ds,
		oid: *oid,
		rec: rec,
	}

	logging.Debug("open", "oid", oid, "err", nil)
	span.End(nil)
	return obj, nil
}

// GetBSize reports the backend block size for oid in bytes.
func (ds *DataStore) GetBSize(oid *OID) (int64, error) {
	span := perfc.Begin(perfc.OpGetBSize)

	if err := ds.valid("get_bsize"); err != nil {
		span.End(err)
		return 0, err
	}
	if oid == nil {
		err := NewError("get_bsize", ErrCodeInvalidArgument, "nil oid")
		span.End(err)
		return 0, err
	}

	bs, err := ds.ops.ObjGetBSize(oid)
	span.End(err)
	return bs, err
}
