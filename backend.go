package dsal

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/viper"

	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

// OpType identifies the kind of an IO operation.
type OpType int

const (
	// OpWrite stores the vector's payload at its extents.
	OpWrite OpType = iota + 1
	// OpRead fills the vector's payload buffers from its extents.
	OpRead
	// OpFree releases the vector's extents; no payload is carried.
	OpFree
)

func (t OpType) String() string {
	switch t {
	case OpWrite:
		return "WRITE"
	case OpRead:
		return "READ"
	case OpFree:
		return "FREE"
	default:
		return fmt.Sprintf("OpType(%d)", int(t))
	}
}

// valid reports whether t is one of the accepted operation kinds.
func (t OpType) valid() bool {
	return t == OpWrite || t == OpRead || t == OpFree
}

// BackendObject is the backend-private record for an open object. The
// façade treats it as opaque and hands it back on every per-object call;
// backends type-assert it to their concrete type.
type BackendObject interface{}

// BackendOp is the backend-private record for an IO operation, opaque to
// the façade in the same way.
type BackendOp interface{}

// Backend is the operations table a storage backend plugs into the
// registry. Exactly one backend is active per process, selected at Init
// time by the "dstore.type" configuration key.
//
// Error contract: ENOENT for missing objects, and for aligned reads that
// touch at least one never-written block (the hole surface the façade's
// hole-tolerant reader recovers from) unless the backend reads such
// blocks back as zeroes itself; EEXIST for create collisions; any other
// failure passed through unchanged.
type Backend interface {
	// Init prepares the backend from its configuration subtree.
	Init(cfg *viper.Viper) error

	// Fini tears the backend down. No objects may be open.
	Fini() error

	// ObjCreate materializes a new object under oid.
	ObjCreate(ctx context.Context, oid *OID) error

	// ObjDelete removes the object under oid.
	ObjDelete(ctx context.Context, oid *OID) error

	// ObjGetID allocates a fresh object identifier.
	ObjGetID(oid *OID) error

	// ObjOpen produces the backend-private record for an open object.
	ObjOpen(ctx context.Context, oid *OID) (BackendObject, error)

	// ObjClose releases the record produced by ObjOpen.
	ObjClose(obj BackendObject) error

	// OpInit allocates an operation bound to obj, t and vec. The vector
	// is moved into the operation: the caller's Vec is zeroed and the
	// backend releases the arrays at OpFini. complete, if non-nil, is
	// invoked exactly once when the operation reaches a terminal state,
	// with the rc that OpWait will return.
	OpInit(ctx context.Context, obj BackendObject, t OpType, vec *bufvec.Vec,
		complete func(rc error)) (BackendOp, error)

	// OpSubmit starts execution. Submission itself does not fail;
	// asynchronous errors surface at completion.
	OpSubmit(op BackendOp) error

	// OpWait blocks until the operation is terminal and returns its
	// final rc.
	OpWait(op BackendOp) error

	// OpFini releases the operation. Valid in a terminal state, and on
	// an operation that was never submitted.
	OpFini(op BackendOp)

	// ObjGetBSize reports the block size the backend accepts for oid.
	ObjGetBSize(oid *OID) (int64, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Backend)
)

// RegisterBackend adds a named backend to the registry. Backend packages
// call it from init(), so importing a backend is what makes it
// selectable. Registering a duplicate name or a nil backend panics.
func RegisterBackend(name string, b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if b == nil {
		panic("dsal: RegisterBackend with nil backend")
	}
	if _, dup := registry[name]; dup {
		panic("dsal: RegisterBackend called twice for " + name)
	}
	registry[name] = b
}

// Backends lists the registered backend names, sorted.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookupBackend resolves the backend named by the "dstore.type" key.
// The match is exact.
func lookupBackend(cfg *viper.Viper) (string, Backend, error) {
	if cfg == nil {
		return "", nil, NewError("init", ErrCodeInvalidArgument, "nil configuration")
	}

	name := cfg.GetString(ConfigKeyType)
	if name == "" {
		return "", nil, NewError("init", ErrCodeInvalidArgument,
			"dstore type not specified")
	}

	registryMu.RLock()
	b, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return "", nil, NewError("init", ErrCodeInvalidArgument,
			fmt.Sprintf("unknown dstore type %q", name))
	}
	return name, b, nil
}
