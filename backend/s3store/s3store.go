// Package s3store provides a dsal backend on S3-compatible object
// storage.
//
// Every block is its own S3 object under a per-store key prefix, plus a
// marker object recording existence. A GET of a key that was never PUT
// answers NoSuchKey, which maps to ENOENT — the hole surface the façade
// recovers from. Multi-block operations fan out with a bounded worker
// group, one request per block.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	dsal "github.com/Seagate/cortx-dsal"
	"github.com/Seagate/cortx-dsal/backend/internal/asyncop"
	"github.com/Seagate/cortx-dsal/internal/bufvec"
)

// Name is the registry name of this backend.
const Name = "s3"

// maxInflight bounds the per-operation request fan-out.
const maxInflight = 8

func init() {
	dsal.RegisterBackend(Name, New())
}

// Client is the slice of the S3 API the backend uses. *s3.Client
// satisfies it; tests substitute a fake.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store is the backend singleton over one bucket.
type Store struct {
	mu        sync.RWMutex
	client    Client
	bucket    string
	keyPrefix string
	bsize     int64
}

// s3Obj is the backend-private record for an open object.
type s3Obj struct {
	oid dsal.OID
}

// s3Op is the backend-private record for an IO operation.
type s3Op struct {
	ctx context.Context
	aop *asyncop.Op
	vec bufvec.Vec
}

// New creates an unconfigured Store; Init builds the client.
func New() *Store {
	return &Store{}
}

// NewWithClient creates a configured Store around an existing client.
func NewWithClient(client Client, bucket, keyPrefix string, bsize int64) *Store {
	if bsize <= 0 {
		bsize = dsal.DefaultBlockSize
	}
	return &Store{
		client:    client,
		bucket:    bucket,
		keyPrefix: keyPrefix,
		bsize:     bsize,
	}
}

// Init implements dsal.Backend. Configuration subtree:
//
//	dstore.s3.bucket     — bucket name (required)
//	dstore.s3.region     — AWS region
//	dstore.s3.endpoint   — endpoint URL for S3-compatible services
//	dstore.s3.access_key — static credentials (with secret_key)
//	dstore.s3.secret_key
//	dstore.s3.path_style — force path-style addressing (MinIO etc.)
//	dstore.s3.prefix     — key prefix, "/"-terminated if non-empty
//	dstore.s3.bsize      — block size in bytes (default 4096)
func (s *Store) Init(cfg *viper.Viper) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := cfg.GetString("dstore.s3.bucket")
	if bucket == "" {
		return dsal.NewError("init", dsal.ErrCodeInvalidArgument,
			"dstore.s3.bucket not specified")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if region := cfg.GetString("dstore.s3.region"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if ak := cfg.GetString("dstore.s3.access_key"); ak != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ak,
				cfg.GetString("dstore.s3.secret_key"), "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return dsal.WrapError("init", fmt.Errorf("load aws config: %w", err))
	}

	var s3Opts []func(*s3.Options)
	if ep := cfg.GetString("dstore.s3.endpoint"); ep != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(ep)
		})
	}
	if cfg.GetBool("dstore.s3.path_style") {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	s.bucket = bucket
	s.keyPrefix = cfg.GetString("dstore.s3.prefix")

	s.bsize = int64(dsal.DefaultBlockSize)
	if bs := cfg.GetInt64("dstore.s3.bsize"); bs > 0 {
		s.bsize = bs
	}
	return nil
}

// Fini implements dsal.Backend.
func (s *Store) Fini() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.client = nil
	return nil
}

func (s *Store) api(op string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.client == nil {
		return nil, dsal.NewError(op, dsal.ErrCodeNotInitialized, "s3 backend not initialized")
	}
	return s.client, nil
}

// markerKey records object existence.
func (s *Store) markerKey(oid *dsal.OID) string {
	return fmt.Sprintf("%so/%s", s.keyPrefix, oid)
}

// blockKey addresses one block of an object.
func (s *Store) blockKey(oid *dsal.OID, blk int64) string {
	return fmt.Sprintf("%sb/%s/%016x", s.keyPrefix, oid, blk)
}

// blockPrefix is the common prefix of all block keys of an object.
func (s *Store) blockPrefix(oid *dsal.OID) string {
	return fmt.Sprintf("%sb/%s/", s.keyPrefix, oid)
}

// isNotFound reports whether an S3 error means "no such key".
func isNotFound(err error) bool {
	if err == nil {
		return false
	}

	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}

	// Some S3-compatible services only speak in status text.
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "404")
}

// ObjCreate implements dsal.Backend.
func (s *Store) ObjCreate(ctx context.Context, oid *dsal.OID) error {
	client, err := s.api("obj_create")
	if err != nil {
		return err
	}

	key := s.markerKey(oid)
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return dsal.NewObjectError("obj_create", oid, syscall.EEXIST, "object exists")
	}
	if !isNotFound(err) {
		return dsal.WrapError("obj_create", err)
	}

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return dsal.WrapError("obj_create", fmt.Errorf("s3 put object: %w", err))
	}
	return nil
}

// ObjDelete implements dsal.Backend. Removes the marker and every block
// object under the block prefix.
func (s *Store) ObjDelete(ctx context.Context, oid *dsal.OID) error {
	client, err := s.api("obj_delete")
	if err != nil {
		return err
	}

	marker := s.markerKey(oid)
	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(marker),
	})
	if isNotFound(err) {
		return dsal.NewObjectError("obj_delete", oid, syscall.ENOENT, "no such object")
	}
	if err != nil {
		return dsal.WrapError("obj_delete", err)
	}

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.blockPrefix(oid)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return dsal.WrapError("obj_delete", fmt.Errorf("s3 list objects: %w", err))
		}
		for _, item := range page.Contents {
			_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    item.Key,
			})
			if err != nil {
				return dsal.WrapError("obj_delete", fmt.Errorf("s3 delete object: %w", err))
			}
		}
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(marker),
	})
	if err != nil {
		return dsal.WrapError("obj_delete", fmt.Errorf("s3 delete object: %w", err))
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
	client, err := s.api("obj_open")
	if err != nil {
		return nil, err
	}

	_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.markerKey(oid)),
	})
	if isNotFound(err) {
		return nil, dsal.NewObjectError("obj_open", oid, syscall.ENOENT, "no such object")
	}
	if err != nil {
		return nil, dsal.WrapError("obj_open", err)
	}

	return &s3Obj{oid: *oid}, nil
}

// ObjClose implements dsal.Backend.
func (s *Store) ObjClose(rec dsal.BackendObject) error {
	if _, ok := rec.(*s3Obj); !ok {
		return dsal.NewError("obj_close", dsal.ErrCodeInvalidArgument, "foreign object record")
	}
	return nil
}

// OpInit implements dsal.Backend. The request context is captured into
// the operation and governs the fan-out requests issued at execution.
func (s *Store) OpInit(ctx context.Context, rec dsal.BackendObject, t dsal.OpType,
	vec *bufvec.Vec, complete func(rc error)) (dsal.BackendOp, error) {
	so, ok := rec.(*s3Obj)
	if !ok {
		return nil, dsal.NewError("io_op_init", dsal.ErrCodeInvalidArgument, "foreign object record")
	}

	op := &s3Op{ctx: ctx}
	op.vec.Move(vec)

	oid := so.oid
	switch t {
	case dsal.OpWrite:
		op.aop = asyncop.New(func() error { return s.execWrite(op.ctx, &oid, &op.vec) }, complete)
	case dsal.OpRead:
		op.aop = asyncop.New(func() error { return s.execRead(op.ctx, &oid, &op.vec) }, complete)
	case dsal.OpFree:
		op.aop = asyncop.New(func() error { return s.execFree(op.ctx, &oid, &op.vec) }, complete)
	default:
		vec.Move(&op.vec)
		return nil, dsal.NewObjectError("io_op_init", &so.oid, syscall.EINVAL,
			"unsupported op type "+t.String())
	}

	return op, nil
}

// OpSubmit implements dsal.Backend.
func (s *Store) OpSubmit(rec dsal.BackendOp) error {
	op, ok := rec.(*s3Op)
	if !ok {
		return dsal.NewError("io_op_submit", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Submit()
}

// OpWait implements dsal.Backend.
func (s *Store) OpWait(rec dsal.BackendOp) error {
	op, ok := rec.(*s3Op)
	if !ok {
		return dsal.NewError("io_op_wait", dsal.ErrCodeInvalidArgument, "foreign op record")
	}
	return op.aop.Wait()
}

// OpFini implements dsal.Backend.
func (s *Store) OpFini(rec dsal.BackendOp) {
	op, ok := rec.(*s3Op)
	if !ok {
		return
	}
	op.vec.Fini()
	op.aop.Fini()
}

// ObjGetBSize implements dsal.Backend.
func (s *Store) ObjGetBSize(oid *dsal.OID) (int64, error) {
	if _, err := s.api("get_bsize"); err != nil {
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

// forEachBlock runs fn for every block of every extent in the vector,
// bounded-concurrently. data is nil for extent-only vectors.
func (s *Store) forEachBlock(ctx context.Context, oid *dsal.OID, vec *bufvec.Vec,
	fn func(ctx context.Context, blk int64, data []byte) error) error {
	bs := s.bsize

	for _, e := range vec.Exts {
		if err := s.checkExtent(oid, e); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInflight)

	for i, e := range vec.Exts {
		var data []byte
		if vec.HasData() {
			data = vec.Bufs[i]
		}
		for blk := int64(0); blk < e.Len/bs; blk++ {
			var chunk []byte
			if data != nil {
				chunk = data[blk*bs : (blk+1)*bs]
			}
			blkIdx := e.Off/bs + blk
			g.Go(func() error {
				return fn(gctx, blkIdx, chunk)
			})
		}
	}

	return g.Wait()
}

func (s *Store) execWrite(ctx context.Context, oid *dsal.OID, vec *bufvec.Vec) error {
	client, err := s.api("io")
	if err != nil {
		return err
	}

	err = s.forEachBlock(ctx, oid, vec, func(ctx context.Context, blk int64, data []byte) error {
		_, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.blockKey(oid, blk)),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("s3 put object: %w", err)
		}
		return nil
	})
	if err != nil {
		return dsal.WrapError("io", err)
	}
	return nil
}

func (s *Store) execRead(ctx context.Context, oid *dsal.OID, vec *bufvec.Vec) error {
	client, err := s.api("io")
	if err != nil {
		return err
	}

	err = s.forEachBlock(ctx, oid, vec, func(ctx context.Context, blk int64, data []byte) error {
		resp, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.blockKey(oid, blk)),
		})
		if err != nil {
			if isNotFound(err) {
				return dsal.NewObjectError("io", oid, syscall.ENOENT,
					fmt.Sprintf("unwritten block %d", blk))
			}
			return fmt.Errorf("s3 get object: %w", err)
		}
		defer resp.Body.Close()

		if _, err := io.ReadFull(resp.Body, data); err != nil {
			return fmt.Errorf("read s3 object body: %w", err)
		}
		return nil
	})
	if err != nil {
		return dsal.WrapError("io", err)
	}
	return nil
}

func (s *Store) execFree(ctx context.Context, oid *dsal.OID, vec *bufvec.Vec) error {
	client, err := s.api("io")
	if err != nil {
		return err
	}

	err = s.forEachBlock(ctx, oid, vec, func(ctx context.Context, blk int64, _ []byte) error {
		_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.blockKey(oid, blk)),
		})
		if err != nil {
			return fmt.Errorf("s3 delete object: %w", err)
		}
		return nil
	})
	if err != nil {
		return dsal.WrapError("io", err)
	}
	return nil
}

var _ dsal.Backend = (*Store)(nil)
