package dsal

import (
	"context"
	"syscall"

	"github.com/Seagate/cortx-dsal/internal/bufvec"
	"github.com/Seagate/cortx-dsal/internal/logging"
	"github.com/Seagate/cortx-dsal/internal/perfc"
)

// ioSingle runs one single-buffer operation through the full lifecycle:
// buffer → vector → init+submit → wait → fini, releasing every
// intermediate on every exit path, in reverse construction order.
func (o *Object) ioSingle(ctx context.Context, t OpType, data []byte, off int64) error {
	buf, err := bufvec.NewBuf(data, off)
	if err != nil {
		return WrapError("io", err)
	}
	defer buf.Fini()

	vec, err := bufvec.FromBuf(buf)
	if err != nil {
		return WrapError("io", err)
	}
	defer vec.Fini()

	op, err := o.initAndSubmit(ctx, t, vec)
	if err != nil {
		return err
	}
	defer op.Fini()

	return op.Wait()
}

// pwriteAligned writes len(data) bytes at off; both must be multiples of
// the backend block size.
func (o *Object) pwriteAligned(ctx context.Context, data []byte, off int64) error {
	err := o.ioSingle(ctx, OpWrite, data, off)
	logging.Debug("pwrite_aligned", "oid", &o.oid, "off", off, "size", len(data), "err", err)
	return err
}

// preadAligned reads len(data) bytes at off; both must be multiples of
// the backend block size. On a backend that exposes holes, a read
// touching any never-written block reports ENOENT; callers wanting hole
// semantics go through
// preadAlignedHoles.
func (o *Object) preadAligned(ctx context.Context, data []byte, off int64) error {
	err := o.ioSingle(ctx, OpRead, data, off)
	logging.Debug("pread_aligned", "oid", &o.oid, "off", off, "size", len(data), "err", err)
	return err
}

// preadAlignedHoles is the hole-tolerant aligned read. Backends answer a
// multi-block read with ENOENT when any constituent block was never
// written, without saying which. The recovery narrows the hole to its
// exact extent: re-read block by block, zero-filling exactly the blocks
// that still report ENOENT. Any other per-block failure is fatal.
func (o *Object) preadAlignedHoles(ctx context.Context, data []byte, off, bs int64) error {
	err := o.preadAligned(ctx, data, off)

	if IsErrno(err, syscall.ENOENT) {
		count := int64(len(data)) / bs

		for i := int64(0); i < count; i++ {
			blk := data[i*bs : (i+1)*bs]

			err = o.preadAligned(ctx, blk, off+i*bs)
			if err != nil {
				if IsErrno(err, syscall.ENOENT) {
					// Unwritten block: it reads as zeroes.
					zeroFill(blk)
				} else {
					logging.Error("unable to read block",
						"oid", &o.oid, "off", off+i*bs, "bs", bs, "err", err)
					return err
				}
			}
		}

		err = nil
	}

	logging.Debug("pread_aligned_holes", "oid", &o.oid, "off", off, "size", len(data), "err", err)
	return err
}

// pwriteUnaligned commits an arbitrary byte range with one aligned
// write: stage the touched block span in a scratch buffer, read-modify
// the partial edge blocks through the hole-tolerant reader, lay the
// payload over the staging area, and write the whole span back.
func (o *Object) pwriteUnaligned(ctx context.Context, off, bs int64, data []byte) error {
	count := int64(len(data))

	leftBlk := off / bs

	rightBlk := (off + count) / bs
	if (off+count)%bs == 0 {
		rightBlk--
	}

	numBlks := rightBlk - leftBlk + 1

	scratch := make([]byte, numBlks*bs)

	// A partial left edge needs the existing block contents underneath
	// the payload. A single-block write that leaves either edge of the
	// block uncovered needs them just the same.
	readLeft := off%bs != 0 ||
		(leftBlk == rightBlk && (off+count)%bs != 0)

	if readLeft {
		if err := o.preadAlignedHoles(ctx, scratch[:bs], leftBlk*bs, bs); err != nil {
			logging.Error("edge read failed",
				"oid", &o.oid, "off", leftBlk*bs, "bs", bs, "err", err)
			return err
		}
	}

	// Same for a partial right edge when it is a different block.
	if (off+count)%bs != 0 && leftBlk != rightBlk {
		if err := o.preadAlignedHoles(ctx, scratch[(numBlks-1)*bs:], rightBlk*bs, bs); err != nil {
			logging.Error("edge read failed",
				"oid", &o.oid, "off", rightBlk*bs, "bs", bs, "err", err)
			return err
		}
	}

	bufPos := off - leftBlk*bs
	copy(scratch[bufPos:bufPos+count], data)

	// One write which is both left and right aligned.
	err := o.pwriteAligned(ctx, scratch, leftBlk*bs)
	if err != nil {
		logging.Error("write failed",
			"oid", &o.oid, "off", leftBlk*bs, "bs", bs, "err", err)
	}

	logging.Debug("pwrite_unaligned", "oid", &o.oid, "off", off, "size", count, "err", err)
	return err
}

// preadUnaligned serves an arbitrary byte range in three segments: a
// partial left block staged through a one-block scratch, an interior
// aligned run read straight into the caller's buffer, and a partial
// right block staged again. All reads are hole-tolerant.
func (o *Object) preadUnaligned(ctx context.Context, off, bs int64, data []byte) error {
	count := int64(len(data))
	bufPos := int64(0)

	scratch := make([]byte, bs)

	if off%bs != 0 || count < bs {
		leftBlk := off / bs
		leftBytes := off - leftBlk*bs
		rightBytes := bs - leftBytes

		// An insider request ends within this same block.
		readCount := count
		if readCount > rightBytes {
			readCount = rightBytes
		}

		if err := o.preadAlignedHoles(ctx, scratch, leftBlk*bs, bs); err != nil {
			logging.Error("read failed",
				"oid", &o.oid, "off", leftBlk*bs, "bs", bs, "err", err)
			return err
		}

		copy(data[:readCount], scratch[leftBytes:leftBytes+readCount])

		if count <= rightBytes {
			return nil
		}

		count -= readCount
		off += readCount
		bufPos = readCount
	}

	// Interior aligned run.
	contBlks := count / bs
	if contBlks > 0 {
		err := o.preadAlignedHoles(ctx, data[bufPos:bufPos+contBlks*bs], off, bs)
		if err != nil {
			logging.Error("read failed",
				"oid", &o.oid, "off", off, "bs", bs, "err", err)
			return err
		}

		count -= contBlks * bs
		off += contBlks * bs
		bufPos += contBlks * bs
	}

	if count == 0 {
		// Request was right aligned.
		return nil
	}

	// Partial right block.
	if err := o.preadAlignedHoles(ctx, scratch, off, bs); err != nil {
		logging.Error("read failed",
			"oid", &o.oid, "off", off, "bs", bs, "err", err)
		return err
	}

	copy(data[bufPos:], scratch[:count])
	return nil
}

// checkIOArgs validates the common positional-IO arguments.
func (o *Object) checkIOArgs(op string, off, bs int64, data []byte) error {
	if o == nil || o.ds == nil {
		return NewError(op, ErrCodeInvalidArgument, "nil object")
	}
	if off < 0 || bs <= 0 || len(data) == 0 {
		return NewObjectError(op, &o.oid, syscall.EINVAL, "bad io range")
	}
	return nil
}

// PWrite writes len(data) bytes at off against a backend with block size
// bs. An aligned request goes straight to the backend; anything else is
// committed through the read-modify-write staging path, so a failed call
// never leaves a partially-written unaligned region behind.
func (o *Object) PWrite(ctx context.Context, off, bs int64, data []byte) error {
	span := perfc.Begin(perfc.OpPWrite)

	err := o.checkIOArgs("pwrite", off, bs, data)
	if err == nil {
		if int64(len(data))%bs == 0 && off%bs == 0 {
			err = o.pwriteAligned(ctx, data, off)
		} else {
			err = o.pwriteUnaligned(ctx, off, bs, data)
		}
		logging.Debug("pwrite", "oid", &o.oid, "off", off, "size", len(data), "err", err)
	}

	span.EndSized(err, len(data))
	return err
}

// PRead reads len(data) bytes at off against a backend with block size
// bs. Unwritten blocks read as zeroes.
func (o *Object) PRead(ctx context.Context, off, bs int64, data []byte) error {
	span := perfc.Begin(perfc.OpPRead)

	err := o.checkIOArgs("pread", off, bs, data)
	if err == nil {
		if int64(len(data))%bs == 0 && off%bs == 0 {
			err = o.preadAlignedHoles(ctx, data, off, bs)
		} else {
			err = o.preadUnaligned(ctx, off, bs, data)
		}
		logging.Debug("pread", "oid", &o.oid, "off", off, "size", len(data), "err", err)
	}

	span.EndSized(err, len(data))
	return err
}

// shrink zero-fills [newSize, oldSize). No FREE is issued and no blocks
// are deallocated; writing zeroes stands in for real truncation: a later
// extension over this range reads zeroes instead of stale data.
func (o *Object) shrink(ctx context.Context, oldSize, newSize int64) error {
	bs, err := o.ds.GetBSize(&o.oid)
	if err != nil {
		return WrapError("resize", err)
	}

	count := oldSize - newSize
	offset := newSize

	// Zeroed staging space; no single sub-write exceeds MaxIOSize.
	zeroes := make([]byte, MaxIOSize)

	nrRequests := count / MaxIOSize
	tailSize := count - nrRequests*MaxIOSize

	var index int64
	for index = 0; index < nrRequests; index++ {
		if err = o.PWrite(ctx, offset+index*MaxIOSize, bs, zeroes); err != nil {
			return err
		}
	}

	if tailSize > 0 {
		if err = o.PWrite(ctx, offset+index*MaxIOSize, bs, zeroes[:tailSize]); err != nil {
			return err
		}
	}

	logging.Debug("shrink", "oid", &o.oid, "old_size", oldSize, "new_size", newSize)
	return nil
}

// Resize changes the logical size of the object. Growing (or keeping)
// the size is a no-op: the extension is a hole and reads back as zeroes.
// Shrinking zero-fills the truncated tail.
func (o *Object) Resize(ctx context.Context, oldSize, newSize int64) error {
	span := perfc.Begin(perfc.OpResize)

	var err error
	switch {
	case o == nil || o.ds == nil:
		err = NewError("resize", ErrCodeInvalidArgument, "nil object")
	case oldSize < 0 || newSize < 0:
		err = NewObjectError("resize", &o.oid, syscall.EINVAL, "bad size")
	case oldSize <= newSize:
		// No-op: same size, or an extension that reads as a hole.
	default:
		err = o.shrink(ctx, oldSize, newSize)
	}

	if o != nil && o.ds != nil {
		logging.Debug("resize", "oid", &o.oid,
			"old_size", oldSize, "new_size", newSize, "err", err)
	}
	span.End(err)
	return err
}

func zeroFill(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
