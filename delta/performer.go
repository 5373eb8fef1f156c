package delta

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"

	"github.com/golang/protobuf/proto"
	"github.com/itchio/wharf/state"
	"github.com/pkg/errors"

	"github.com/ottergrid/pave/prefs"
	"github.com/ottergrid/pave/terminator"
)

var (
	// ErrFormat is returned when the payload doesn't start with the
	// expected magic, or declares a version we can't apply.
	ErrFormat = errors.New("bad payload magic or version")

	// ErrBufferNotEmpty is returned by Close when payload bytes are
	// still pending, i.e. the stream was truncated.
	ErrBufferNotEmpty = errors.New("closed with bytes still buffered (truncated payload?)")
)

// Performer applies a delta update payload to a rootfs and a kernel
// partition. It is a push-style sink: feed it the payload through
// Write, then Close and VerifyPayload.
//
// All durable progress goes through Prefs; Terminator is flipped
// around non-resumable windows so a cooperating signal handler won't
// kill the process mid-operation.
type Performer struct {
	Prefs      prefs.Prefs
	Terminator *terminator.Terminator
	Consumer   *state.Consumer

	// BspatchPath is the external binary-patch executable. Empty
	// means DefaultBspatchPath.
	BspatchPath string

	fd         *os.File
	kernelFD   *os.File
	path       string
	kernelPath string

	manifest      DeltaArchiveManifest
	manifestValid bool
	blockSize     uint64

	buffer               []byte
	bufferOffset         uint64
	manifestMetadataSize uint64

	nextOperationNum        int
	lastUpdatedBufferOffset uint64

	hashCalculator        *SHA256Calculator
	signedHashContext     string
	signaturesMessageData []byte

	// resuming suppresses re-hashing of metadata bytes when the hash
	// context was restored from the progress store.
	resuming bool
}

// NewPerformer returns a Performer ready to accept payload bytes.
func NewPerformer(store prefs.Prefs, term *terminator.Terminator, consumer *state.Consumer) *Performer {
	return &Performer{
		Prefs:      store,
		Terminator: term,
		Consumer:   consumer,

		lastUpdatedBufferOffset: math.MaxUint64,
		hashCalculator:          NewSHA256Calculator(),
	}
}

// Open opens the rootfs partition. Flags and perm are passed through
// to the OS untouched.
func (p *Performer) Open(path string, flags int, perm os.FileMode) error {
	if p.fd != nil {
		return errors.Errorf("rootfs already open (%s)", p.path)
	}
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return errors.WithStack(err)
	}
	p.fd = f
	p.path = path
	return nil
}

// OpenKernel opens the kernel partition.
func (p *Performer) OpenKernel(path string, flags int, perm os.FileMode) error {
	if p.kernelFD != nil {
		return errors.Errorf("kernel already open (%s)", p.kernelPath)
	}
	f, err := os.OpenFile(path, flags, perm)
	if err != nil {
		return errors.WithStack(err)
	}
	p.kernelFD = f
	p.kernelPath = path
	return nil
}

// Close closes both partitions and finalizes the download hash. It
// fails if payload bytes are still buffered: that means the stream
// ended mid-operation.
func (p *Performer) Close() error {
	if len(p.buffer) != 0 {
		return errors.WithStack(ErrBufferNotEmpty)
	}

	var firstErr error
	if p.kernelFD != nil {
		if err := p.kernelFD.Close(); err != nil && firstErr == nil {
			firstErr = errors.WithStack(err)
		}
		p.kernelFD = nil
	}
	if p.fd != nil {
		if err := p.fd.Close(); err != nil && firstErr == nil {
			firstErr = errors.WithStack(err)
		}
		p.fd = nil
	}
	p.path = ""
	p.kernelPath = ""

	if err := p.hashCalculator.Finalize(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

const headerSize = len(Magic) + VersionLength + ManifestLengthLength

// Write accepts the next chunk of payload bytes and performs as many
// install operations as the buffered data allows. It implements
// io.Writer; every byte is accepted into the internal buffer before
// any operation runs, so n is always len(data), also when an operation
// fails and err is non-nil.
func (p *Performer) Write(data []byte) (int, error) {
	count := len(data)
	p.buffer = append(p.buffer, data...)

	if !p.manifestValid {
		ok, err := p.parseManifest()
		if err != nil {
			return count, err
		}
		if !ok {
			// not enough bytes yet
			return count, nil
		}
	}

	totalOperations := len(p.manifest.GetInstallOperations()) +
		len(p.manifest.GetKernelInstallOperations())
	for p.nextOperationNum < totalOperations {
		op := manifestOperation(&p.manifest, p.nextOperationNum)

		ready, err := p.canPerformInstallOperation(op)
		if err != nil {
			return count, err
		}
		if !ready {
			break
		}

		err = p.performNextOperation(op, totalOperations)
		if err != nil {
			return count, errors.WithMessagef(err, "operation %d (%s)", p.nextOperationNum, op.GetType())
		}
	}
	return count, nil
}

// parseManifest consumes the header and manifest once enough bytes
// have arrived. Returns false with no error if more bytes are needed.
func (p *Performer) parseManifest() (bool, error) {
	if len(p.buffer) < headerSize {
		return false, nil
	}
	if !bytes.Equal(p.buffer[:len(Magic)], []byte(Magic)) {
		return false, errors.WithStack(ErrFormat)
	}
	version := binary.BigEndian.Uint64(p.buffer[len(Magic):])
	if version != FormatVersion {
		return false, errors.Wrapf(ErrFormat, "payload version %d", version)
	}

	manifestLength := binary.BigEndian.Uint64(p.buffer[len(Magic)+VersionLength:])
	if uint64(len(p.buffer)) < uint64(headerSize)+manifestLength {
		return false, nil
	}

	err := proto.Unmarshal(p.buffer[headerSize:uint64(headerSize)+manifestLength], &p.manifest)
	if err != nil {
		return false, errors.Wrap(err, "parsing manifest")
	}

	metadataSize := uint64(headerSize) + manifestLength
	if p.resuming {
		if metadataSize != p.manifestMetadataSize {
			return false, errors.Errorf(
				"resumed update: payload metadata size %d doesn't match stored %d",
				metadataSize, p.manifestMetadataSize)
		}
		// already hashed before the interruption
		p.discardBufferHeadBytes(metadataSize, false)
	} else {
		p.manifestMetadataSize = metadataSize
		p.discardBufferHeadBytes(metadataSize, true)
		err = p.Prefs.SetInt64(prefs.ManifestMetadataSize, int64(metadataSize))
		if err != nil {
			p.Consumer.Warnf("unable to save the manifest metadata size: %v", err)
		}
	}

	p.manifestValid = true
	p.blockSize = uint64(p.manifest.GetBlockSize())
	DumpManifest(p.Consumer, &p.manifest)
	return true, nil
}

// canPerformInstallOperation reports whether the operation's data blob
// is fully buffered. MOVE has no blob and is always ready. A blob that
// starts before bufferOffset means bytes we already discarded are
// needed again, which is fatal.
func (p *Performer) canPerformInstallOperation(op *InstallOperation) (bool, error) {
	if op.GetType() == InstallOperation_MOVE {
		return true, nil
	}

	if op.GetDataOffset() < p.bufferOffset {
		return false, errors.Errorf(
			"operation needs data at offset %d but the stream is past %d",
			op.GetDataOffset(), p.bufferOffset)
	}

	ready := op.GetDataOffset()+op.GetDataLength() <= p.bufferOffset+uint64(len(p.buffer))
	return ready, nil
}

// performNextOperation runs one operation, advances the operation
// counter and checkpoints. Exit is re-allowed when it returns,
// whatever the outcome.
func (p *Performer) performNextOperation(op *InstallOperation, totalOperations int) error {
	defer p.Terminator.SetExitBlocked(false)

	// Log every thousandth operation, and also the first and last ones
	if p.nextOperationNum%1000 == 0 || p.nextOperationNum+1 == totalOperations {
		p.Consumer.Infof("performing operation %d/%d", p.nextOperationNum+1, totalOperations)
	}
	p.Consumer.Progress(float64(p.nextOperationNum) / float64(totalOperations))

	isKernel := p.nextOperationNum >= len(p.manifest.GetInstallOperations())

	// A non-idempotent operation can't be safely repeated, so before
	// touching any block: stop honoring exit requests, and mark the
	// update non-resumable in case we die anyway.
	if !isIdempotentOperation(op) {
		p.Terminator.SetExitBlocked(true)
		err := ResetUpdateProgress(p.Prefs)
		if err != nil {
			return err
		}
	}

	var err error
	switch op.GetType() {
	case InstallOperation_REPLACE, InstallOperation_REPLACE_BZ:
		err = p.performReplaceOperation(op, isKernel)
	case InstallOperation_MOVE:
		err = p.performMoveOperation(op, isKernel)
	case InstallOperation_BSDIFF:
		err = p.performBsdiffOperation(op, isKernel)
	default:
		err = errors.Errorf("unknown operation type %d", op.GetType())
	}
	if err != nil {
		return err
	}

	p.nextOperationNum++
	return p.checkpointUpdateProgress()
}

// isIdempotentOperation reports whether op can be interrupted and
// repeated safely. Operations that read no source extents qualify;
// anything else is conservatively treated as destructive.
func isIdempotentOperation(op *InstallOperation) bool {
	return len(op.GetSrcExtents()) == 0
}

// targetFD picks the partition an operation applies to.
func (p *Performer) targetFD(isKernel bool) *os.File {
	if isKernel {
		return p.kernelFD
	}
	return p.fd
}

func (p *Performer) targetPath(isKernel bool) string {
	if isKernel {
		return p.kernelPath
	}
	return p.path
}

// discardBufferHeadBytes is the single chokepoint for consuming
// payload bytes: every byte that leaves the buffer passes through the
// hash accumulator exactly once, in payload order. updateHash is only
// false when re-feeding metadata after a resume, where the restored
// hash context already covers those bytes.
func (p *Performer) discardBufferHeadBytes(count uint64, updateHash bool) {
	if updateHash {
		p.hashCalculator.Update(p.buffer[:count])
	}
	p.buffer = p.buffer[count:]
}

// checkpointUpdateProgress stamps the durable resume point. The
// ordering matters: the next-operation pointer is cleared first and
// only re-stamped after the hash context and data offset that match it
// are durable. A crash in between leaves the update unresumable, never
// inconsistent.
func (p *Performer) checkpointUpdateProgress() error {
	p.Terminator.SetExitBlocked(true)
	if p.lastUpdatedBufferOffset != p.bufferOffset {
		err := ResetUpdateProgress(p.Prefs)
		if err != nil {
			return err
		}

		context, err := p.hashCalculator.Context()
		if err != nil {
			return err
		}
		err = p.Prefs.SetString(prefs.UpdateStateSHA256Context, context)
		if err != nil {
			return errors.WithMessage(err, "storing hash context")
		}
		err = p.Prefs.SetInt64(prefs.UpdateStateNextDataOffset, int64(p.bufferOffset))
		if err != nil {
			return errors.WithMessage(err, "storing data offset")
		}
		p.lastUpdatedBufferOffset = p.bufferOffset
	}
	err := p.Prefs.SetInt64(prefs.UpdateStateNextOperation, int64(p.nextOperationNum))
	if err != nil {
		return errors.WithMessage(err, "storing next operation")
	}
	return nil
}

// ManifestMetadataSize returns the byte count of header + manifest.
// Valid once the manifest has been parsed, or after ResumeUpdate.
func (p *Performer) ManifestMetadataSize() uint64 {
	return p.manifestMetadataSize
}

// BufferOffset returns the blob-region offset of the next byte the
// performer expects to consume.
func (p *Performer) BufferOffset() uint64 {
	return p.bufferOffset
}

// ResumeUpdate reloads the performer's state from the progress store.
// Call it on a fresh performer, after CanResumeUpdate said yes; then
// re-feed the payload metadata (header + manifest) followed by blob
// bytes starting at the stored data offset.
func (p *Performer) ResumeUpdate() error {
	metadataSize, err := p.Prefs.GetInt64(prefs.ManifestMetadataSize)
	if err != nil {
		return errors.WithMessage(err, "resuming")
	}
	nextOperation, err := p.Prefs.GetInt64(prefs.UpdateStateNextOperation)
	if err != nil {
		return errors.WithMessage(err, "resuming")
	}
	if nextOperation == prefs.OperationInvalid || nextOperation < 0 {
		return errors.New("resuming: update marked non-resumable")
	}
	nextDataOffset, err := p.Prefs.GetInt64(prefs.UpdateStateNextDataOffset)
	if err != nil {
		return errors.WithMessage(err, "resuming")
	}
	hashContext, err := p.Prefs.GetString(prefs.UpdateStateSHA256Context)
	if err != nil {
		return errors.WithMessage(err, "resuming")
	}
	err = p.hashCalculator.SetContext(hashContext)
	if err != nil {
		return errors.WithMessage(err, "resuming: restoring hash context")
	}

	// The signed hash context only exists if the signature operation
	// already ran.
	signedContext, err := p.Prefs.GetString(prefs.UpdateStateSignedSHA256Context)
	if err == nil {
		p.signedHashContext = signedContext
	}

	p.manifestMetadataSize = uint64(metadataSize)
	p.nextOperationNum = int(nextOperation)
	p.bufferOffset = uint64(nextDataOffset)
	p.lastUpdatedBufferOffset = uint64(nextDataOffset)
	p.resuming = true

	p.Consumer.Infof("resuming update at operation %d, data offset %d",
		p.nextOperationNum, p.bufferOffset)
	return nil
}

// CanResumeUpdate is the static resume preflight: it checks that the
// progress store holds a complete, mutually consistent resume point
// for the payload identified by updateCheckResponseHash. It modifies
// nothing.
func CanResumeUpdate(store prefs.Prefs, updateCheckResponseHash string) bool {
	nextOperation, err := store.GetInt64(prefs.UpdateStateNextOperation)
	if err != nil || nextOperation == prefs.OperationInvalid || nextOperation <= 0 {
		return false
	}

	interruptedHash, err := store.GetString(prefs.UpdateCheckResponseHash)
	if err != nil || interruptedHash == "" || interruptedHash != updateCheckResponseHash {
		return false
	}

	nextDataOffset, err := store.GetInt64(prefs.UpdateStateNextDataOffset)
	if err != nil || nextDataOffset < 0 {
		return false
	}

	context, err := store.GetString(prefs.UpdateStateSHA256Context)
	if err != nil || context == "" {
		return false
	}

	metadataSize, err := store.GetInt64(prefs.ManifestMetadataSize)
	if err != nil || metadataSize <= 0 {
		return false
	}

	return true
}

// ResetUpdateProgress marks the stored update state non-resumable.
func ResetUpdateProgress(store prefs.Prefs) error {
	err := store.SetInt64(prefs.UpdateStateNextOperation, prefs.OperationInvalid)
	return errors.WithMessage(err, "resetting update progress")
}
