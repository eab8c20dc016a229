package dsal

import (
	"context"
	"testing"

	"github.com/spf13/viper"

	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

// stubBackend is a do-nothing operations table for registry tests.
type stubBackend struct{}

func (stubBackend) Init(cfg *viper.Viper) error                        { return nil }
func (stubBackend) Fini() error                                        { return nil }
func (stubBackend) ObjCreate(ctx context.Context, oid *OID) error      { return nil }
func (stubBackend) ObjDelete(ctx context.Context, oid *OID) error      { return nil }
func (stubBackend) ObjGetID(oid *OID) error                            { return nil }
func (stubBackend) ObjClose(obj BackendObject) error                   { return nil }
func (stubBackend) OpSubmit(op BackendOp) error                        { return nil }
func (stubBackend) OpWait(op BackendOp) error                          { return nil }
func (stubBackend) OpFini(op BackendOp)                                {}
func (stubBackend) ObjGetBSize(oid *OID) (int64, error)                { return DefaultBlockSize, nil }
func (stubBackend) ObjOpen(ctx context.Context, oid *OID) (BackendObject, error) {
	return nil, nil
}
func (stubBackend) OpInit(ctx context.Context, obj BackendObject, t OpType,
	vec *bufvec.Vec, complete func(rc error)) (BackendOp, error) {
	return nil, nil
}

func init() {
	RegisterBackend("stub", stubBackend{})
}

func cfgWithType(typ string) *viper.Viper {
	v := viper.New()
	v.Set(ConfigKeyType, typ)
	return v
}

func TestLookupBackend(t *testing.T) {
	name, b, err := lookupBackend(cfgWithType("stub"))
	if err != nil {
		t.Fatalf("lookupBackend failed: %v", err)
	}
	if name != "stub" || b == nil {
		t.Errorf("lookupBackend = (%q, %v), want stub backend", name, b)
	}
}

func TestLookupBackendUnknownType(t *testing.T) {
	_, _, err := lookupBackend(cfgWithType("nope"))
	if !IsCode(err, ErrCodeInvalidArgument) {
		t.Errorf("unknown type error = %v, want invalid argument", err)
	}
}

func TestLookupBackendExactMatch(t *testing.T) {
	// A prefix of a registered name must not match.
	_, _, err := lookupBackend(cfgWithType("stu"))
	if !IsCode(err, ErrCodeInvalidArgument) {
		t.Errorf("prefix match accepted: %v", err)
	}
	_, _, err = lookupBackend(cfgWithType("stubby"))
	if !IsCode(err, ErrCodeInvalidArgument) {
		t.Errorf("extension match accepted: %v", err)
	}
}

func TestLookupBackendMissingConfig(t *testing.T) {
	if _, _, err := lookupBackend(nil); !IsCode(err, ErrCodeInvalidArgument) {
		t.Errorf("nil config error = %v, want invalid argument", err)
	}
	if _, _, err := lookupBackend(viper.New()); !IsCode(err, ErrCodeInvalidArgument) {
		t.Errorf("missing type error = %v, want invalid argument", err)
	}
}

func TestBackendsListsRegistered(t *testing.T) {
	found := false
	for _, name := range Backends() {
		if name == "stub" {
			found = true
		}
	}
	if !found {
		t.Error("Backends() does not list the stub backend")
	}
}
