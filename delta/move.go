package delta

import (
	"github.com/pkg/errors"
)

// performMoveOperation copies source extents to destination extents
// through a scratch buffer. No sliding window: the payload generator
// guarantees source and destination don't overlap.
func (p *Performer) performMoveOperation(op *InstallOperation, isKernel bool) error {
	var blocksToRead uint64
	for _, extent := range op.GetSrcExtents() {
		blocksToRead += extent.GetNumBlocks()
	}

	var blocksToWrite uint64
	for _, extent := range op.GetDstExtents() {
		blocksToWrite += extent.GetNumBlocks()
	}

	if blocksToRead != blocksToWrite {
		return errors.Errorf("move reads %d blocks but writes %d", blocksToRead, blocksToWrite)
	}

	buf := make([]byte, blocksToWrite*p.blockSize)
	fd := p.targetFD(isKernel)

	var bytesRead uint64
	for _, extent := range op.GetSrcExtents() {
		length := extent.GetNumBlocks() * p.blockSize
		if extent.GetStartBlock() == SparseHole {
			// reads-as-zero; buf is already zeroed
			bytesRead += length
			continue
		}
		// ReadAt errors on anything short of a full read
		_, err := fd.ReadAt(buf[bytesRead:bytesRead+length], int64(extent.GetStartBlock()*p.blockSize))
		if err != nil {
			return errors.WithStack(err)
		}
		bytesRead += length
	}

	var bytesWritten uint64
	for _, extent := range op.GetDstExtents() {
		length := extent.GetNumBlocks() * p.blockSize
		if extent.GetStartBlock() != SparseHole {
			_, err := fd.WriteAt(buf[bytesWritten:bytesWritten+length], int64(extent.GetStartBlock()*p.blockSize))
			if err != nil {
				return errors.WithStack(err)
			}
		}
		bytesWritten += length
	}
	return nil
}
