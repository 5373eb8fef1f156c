// Package delta applies signed delta update payloads to a pair of
// partition images (rootfs + kernel). The Performer is a streaming
// byte sink: the caller pushes payload bytes into Write, and the
// performer parses the framing, executes install operations against
// the partitions, checkpoints its progress so an interrupted update
// can resume, and verifies payload integrity once the stream ends.
package delta

import (
	"fmt"
	"math"
	"strings"

	"github.com/itchio/wharf/state"
)

const (
	// Magic is the first few bytes of every delta payload.
	Magic = "CrAU"

	// VersionLength and ManifestLengthLength are the sizes of the two
	// big-endian integers that follow the magic.
	VersionLength        = 8
	ManifestLengthLength = 8

	// FormatVersion is the only payload version this performer knows
	// how to apply.
	FormatVersion uint64 = 1

	// SparseHole is the start_block sentinel for an extent with no
	// backing storage.
	SparseHole uint64 = math.MaxUint64

	// DefaultPublicKeyPath is where the payload signing key lives
	// unless the caller says otherwise.
	DefaultPublicKeyPath = "/usr/share/pave/update-payload-key.pub.pem"

	// DefaultBspatchPath is the binary-patch executable invoked for
	// BSDIFF operations.
	DefaultBspatchPath = "bspatch"
)

// SignatureVersion is the Signatures.Signature version this performer
// understands.
const SignatureVersion uint32 = 1

// extentsToString renders extents as "{start, blocks}" pairs for debug
// logging.
func extentsToString(extents []*Extent) string {
	var parts []string
	for _, extent := range extents {
		if extent.GetStartBlock() == SparseHole {
			parts = append(parts, fmt.Sprintf("{sparse, %d}", extent.GetNumBlocks()))
		} else {
			parts = append(parts, fmt.Sprintf("{%d, %d}", extent.GetStartBlock(), extent.GetNumBlocks()))
		}
	}
	return strings.Join(parts, ", ")
}

// DumpManifest logs a parsed manifest at debug level.
func DumpManifest(consumer *state.Consumer, manifest *DeltaArchiveManifest) {
	consumer.Debugf("manifest:")
	consumer.Debugf("  block_size: %d", manifest.GetBlockSize())

	total := len(manifest.GetInstallOperations()) + len(manifest.GetKernelInstallOperations())
	for i := 0; i < total; i++ {
		op := manifestOperation(manifest, i)
		if i == 0 {
			consumer.Debugf("  rootfs ops:")
		} else if i == len(manifest.GetInstallOperations()) {
			consumer.Debugf("  kernel ops:")
		}
		consumer.Debugf("  operation(%d)", i)
		consumer.Debugf("    type: %s", op.GetType())
		if op.DataOffset != nil {
			consumer.Debugf("    data_offset: %d", op.GetDataOffset())
		}
		if op.DataLength != nil {
			consumer.Debugf("    data_length: %d", op.GetDataLength())
		}
		consumer.Debugf("    src_extents: %s", extentsToString(op.GetSrcExtents()))
		if op.SrcLength != nil {
			consumer.Debugf("    src_length: %d", op.GetSrcLength())
		}
		consumer.Debugf("    dst_extents: %s", extentsToString(op.GetDstExtents()))
		if op.DstLength != nil {
			consumer.Debugf("    dst_length: %d", op.GetDstLength())
		}
	}
}

// manifestOperation returns the i-th operation of the combined
// rootfs-then-kernel sequence.
func manifestOperation(manifest *DeltaArchiveManifest, i int) *InstallOperation {
	rootfs := manifest.GetInstallOperations()
	if i < len(rootfs) {
		return rootfs[i]
	}
	return manifest.GetKernelInstallOperations()[i-len(rootfs)]
}
