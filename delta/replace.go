package delta

import (
	"github.com/pkg/errors"
)

// performReplaceOperation handles REPLACE and REPLACE_BZ: the buffer
// head is the operation's data blob, and it is streamed through an
// extent writer chain into the destination extents.
func (p *Performer) performReplaceOperation(op *InstallOperation, isKernel bool) error {
	// Bytes are deleted off the front of the buffer as they're
	// consumed, so a densely-packed payload puts this operation's blob
	// exactly at the buffer head.
	if p.bufferOffset != op.GetDataOffset() {
		return errors.Errorf("replace data expected at offset %d, stream is at %d",
			op.GetDataOffset(), p.bufferOffset)
	}
	if uint64(len(p.buffer)) < op.GetDataLength() {
		return errors.Errorf("replace data not fully buffered (%d < %d)",
			len(p.buffer), op.GetDataLength())
	}

	// The signature blob rides in as a regular REPLACE; capture it
	// before it gets written out.
	err := p.extractSignatureMessage(op)
	if err != nil {
		return err
	}

	var writer ExtentWriter = NewZeroPadExtentWriter(&DirectExtentWriter{})
	if op.GetType() == InstallOperation_REPLACE_BZ {
		writer = NewBzipExtentWriter(writer)
	}

	err = writer.Init(p.targetFD(isKernel), op.GetDstExtents(), p.blockSize)
	if err != nil {
		return err
	}
	err = writer.Write(p.buffer[:op.GetDataLength()])
	if err != nil {
		return err
	}
	err = writer.End()
	if err != nil {
		return err
	}

	p.bufferOffset += op.GetDataLength()
	p.discardBufferHeadBytes(op.GetDataLength(), true)
	return nil
}
