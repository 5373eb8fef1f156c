package delta

import (
	"os"

	"github.com/pkg/errors"
)

// An ExtentWriter lays a byte stream down into a list of disk extents,
// in order. Implementations may wrap one another to form a pipeline
// (zero padding, decompression). The contract is Init once, Write any
// number of times, End once; End fails if the stream did not satisfy
// the writer's byte contract.
type ExtentWriter interface {
	Init(f *os.File, extents []*Extent, blockSize uint64) error
	Write(data []byte) error
	End() error
}

// DirectExtentWriter writes bytes to extents with positional I/O.
// Bytes routed to a sparse-hole extent are discarded.
type DirectExtentWriter struct {
	f         *os.File
	extents   []*Extent
	blockSize uint64

	extentIndex   int
	extentWritten uint64
}

var _ ExtentWriter = (*DirectExtentWriter)(nil)

func (dw *DirectExtentWriter) Init(f *os.File, extents []*Extent, blockSize uint64) error {
	dw.f = f
	dw.extents = extents
	dw.blockSize = blockSize
	return nil
}

func (dw *DirectExtentWriter) Write(data []byte) error {
	for len(data) > 0 {
		if dw.extentIndex >= len(dw.extents) {
			return errors.Errorf("write of %d bytes past the end of the extent list", len(data))
		}

		extent := dw.extents[dw.extentIndex]
		extentSize := extent.GetNumBlocks() * dw.blockSize
		room := extentSize - dw.extentWritten

		chunk := uint64(len(data))
		if chunk > room {
			chunk = room
		}

		if extent.GetStartBlock() != SparseHole {
			offset := int64(extent.GetStartBlock()*dw.blockSize + dw.extentWritten)
			_, err := dw.f.WriteAt(data[:chunk], offset)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		dw.extentWritten += chunk
		if dw.extentWritten == extentSize {
			dw.extentIndex++
			dw.extentWritten = 0
		}
		data = data[chunk:]
	}
	return nil
}

func (dw *DirectExtentWriter) End() error {
	return nil
}

// ZeroPadExtentWriter passes bytes through to an inner writer and, at
// End, pads the final block out with zeros if the stream stopped
// mid-block.
type ZeroPadExtentWriter struct {
	inner ExtentWriter

	blockSize     uint64
	bytesModBlock uint64
}

var _ ExtentWriter = (*ZeroPadExtentWriter)(nil)

func NewZeroPadExtentWriter(inner ExtentWriter) *ZeroPadExtentWriter {
	return &ZeroPadExtentWriter{inner: inner}
}

func (zw *ZeroPadExtentWriter) Init(f *os.File, extents []*Extent, blockSize uint64) error {
	zw.blockSize = blockSize
	return zw.inner.Init(f, extents, blockSize)
}

func (zw *ZeroPadExtentWriter) Write(data []byte) error {
	err := zw.inner.Write(data)
	if err != nil {
		return err
	}
	zw.bytesModBlock = (zw.bytesModBlock + uint64(len(data))) % zw.blockSize
	return nil
}

func (zw *ZeroPadExtentWriter) End() error {
	if zw.bytesModBlock != 0 {
		pad := make([]byte, zw.blockSize-zw.bytesModBlock)
		err := zw.inner.Write(pad)
		if err != nil {
			return err
		}
	}
	return zw.inner.End()
}
