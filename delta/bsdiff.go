package delta

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// extentsToBsdiffPositionsString serializes extents into the patch
// binary's "start:length,start:length" syntax. Starts are byte
// offsets (-1 for a sparse hole); each length is capped so the
// running sum lands exactly on fullLength, which lets the final
// extent cover less than its natural block span.
func extentsToBsdiffPositionsString(extents []*Extent, blockSize uint64, fullLength uint64) (string, error) {
	var parts []string
	var length uint64
	for _, extent := range extents {
		thisLength := extent.GetNumBlocks() * blockSize
		if thisLength > fullLength-length {
			thisLength = fullLength - length
		}

		var start int64
		if extent.GetStartBlock() == SparseHole {
			start = -1
		} else {
			start = int64(extent.GetStartBlock() * blockSize)
		}

		parts = append(parts, fmt.Sprintf("%d:%d", start, thisLength))
		length += thisLength
	}
	if length != fullLength {
		return "", errors.Errorf("extents cover %d bytes, operation declares %d", length, fullLength)
	}
	return strings.Join(parts, ","), nil
}

// performBsdiffOperation writes the buffered patch blob to a scoped
// temp file and hands it to the external patch binary, which applies
// it in-place against the partition using positional extent lists.
func (p *Performer) performBsdiffOperation(op *InstallOperation, isKernel bool) error {
	if p.bufferOffset != op.GetDataOffset() {
		return errors.Errorf("bsdiff patch expected at offset %d, stream is at %d",
			op.GetDataOffset(), p.bufferOffset)
	}
	if uint64(len(p.buffer)) < op.GetDataLength() {
		return errors.Errorf("bsdiff patch not fully buffered (%d < %d)",
			len(p.buffer), op.GetDataLength())
	}

	inputPositions, err := extentsToBsdiffPositionsString(op.GetSrcExtents(), p.blockSize, op.GetSrcLength())
	if err != nil {
		return err
	}
	outputPositions, err := extentsToBsdiffPositionsString(op.GetDstExtents(), p.blockSize, op.GetDstLength())
	if err != nil {
		return err
	}

	patchFile, err := ioutil.TempFile("", "pave-patch-")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(patchFile.Name())

	_, err = patchFile.Write(p.buffer[:op.GetDataLength()])
	if err != nil {
		patchFile.Close()
		return errors.WithStack(err)
	}
	err = patchFile.Close()
	if err != nil {
		return errors.WithStack(err)
	}

	bspatch := p.BspatchPath
	if bspatch == "" {
		bspatch = DefaultBspatchPath
	}
	path := p.targetPath(isKernel)

	cmd := exec.Command(bspatch, path, path, patchFile.Name(), inputPositions, outputPositions)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "%s failed: %s", bspatch, strings.TrimSpace(string(output)))
	}

	// The patch binary writes whole extents; zero whatever tail of the
	// final block the declared output length doesn't reach.
	if op.GetDstLength()%p.blockSize != 0 {
		dstExtents := op.GetDstExtents()
		lastExtent := dstExtents[len(dstExtents)-1]
		if lastExtent.GetStartBlock() != SparseHole {
			endByte := (lastExtent.GetStartBlock() + lastExtent.GetNumBlocks()) * p.blockSize
			beginByte := endByte - (p.blockSize - op.GetDstLength()%p.blockSize)
			zeros := make([]byte, endByte-beginByte)
			_, err = p.targetFD(isKernel).WriteAt(zeros, int64(beginByte))
			if err != nil {
				return errors.WithStack(err)
			}
		}
	}

	p.bufferOffset += op.GetDataLength()
	p.discardBufferHeadBytes(op.GetDataLength(), true)
	return nil
}
