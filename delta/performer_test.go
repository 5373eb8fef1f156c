package delta

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/protobuf/proto"
	"github.com/itchio/wharf/state"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/ottergrid/pave/prefs"
	"github.com/ottergrid/pave/terminator"
)

func replaceOp(opType InstallOperation_Type, dataOffset uint64, dataLength uint64, dst ...*Extent) *InstallOperation {
	return &InstallOperation{
		Type:       opType.Enum(),
		DataOffset: proto.Uint64(dataOffset),
		DataLength: proto.Uint64(dataLength),
		DstExtents: dst,
	}
}

func moveOp(src []*Extent, dst []*Extent) *InstallOperation {
	return &InstallOperation{
		Type:       InstallOperation_MOVE.Enum(),
		SrcExtents: src,
		DstExtents: dst,
	}
}

func bsdiffOp(dataOffset uint64, dataLength uint64, src []*Extent, srcLength uint64, dst []*Extent, dstLength uint64) *InstallOperation {
	return &InstallOperation{
		Type:       InstallOperation_BSDIFF.Enum(),
		DataOffset: proto.Uint64(dataOffset),
		DataLength: proto.Uint64(dataLength),
		SrcExtents: src,
		SrcLength:  proto.Uint64(srcLength),
		DstExtents: dst,
		DstLength:  proto.Uint64(dstLength),
	}
}

func rootfsManifest(blockSize uint32, ops ...*InstallOperation) *DeltaArchiveManifest {
	return &DeltaArchiveManifest{
		InstallOperations: ops,
		BlockSize:         proto.Uint32(blockSize),
	}
}

func buildPayload(t *testing.T, manifest *DeltaArchiveManifest, blobs []byte) []byte {
	t.Helper()

	manifestBytes, err := proto.Marshal(manifest)
	assert.NoError(t, err)

	payload := []byte(Magic)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], FormatVersion)
	payload = append(payload, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], uint64(len(manifestBytes)))
	payload = append(payload, u64[:]...)
	payload = append(payload, manifestBytes...)
	return append(payload, blobs...)
}

func errorCause(err error) error {
	return errors.Cause(err)
}

func payloadHash(payload []byte) string {
	digest := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(digest[:])
}

type testEnv struct {
	performer  *Performer
	store      prefs.Prefs
	dir        string
	rootfsPath string
	kernelPath string
}

func newTestEnv(t *testing.T, store prefs.Prefs, rootfs []byte, kernel []byte) *testEnv {
	t.Helper()

	dir, err := ioutil.TempDir("", "pave-performer")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	env := &testEnv{
		store:      store,
		dir:        dir,
		rootfsPath: filepath.Join(dir, "rootfs"),
		kernelPath: filepath.Join(dir, "kernel"),
	}
	assert.NoError(t, ioutil.WriteFile(env.rootfsPath, rootfs, 0644))
	assert.NoError(t, ioutil.WriteFile(env.kernelPath, kernel, 0644))

	env.performer = env.newPerformer(t)
	return env
}

// newPerformer opens a fresh performer over the same partitions and
// store, as after a process restart.
func (env *testEnv) newPerformer(t *testing.T) *Performer {
	t.Helper()

	performer := NewPerformer(env.store, terminator.New(), &state.Consumer{})
	assert.NoError(t, performer.Open(env.rootfsPath, os.O_RDWR, 0))
	assert.NoError(t, performer.OpenKernel(env.kernelPath, os.O_RDWR, 0))
	return performer
}

func (env *testEnv) rootfs(t *testing.T) []byte {
	t.Helper()
	content, err := ioutil.ReadFile(env.rootfsPath)
	assert.NoError(t, err)
	return content
}

func (env *testEnv) kernel(t *testing.T) []byte {
	t.Helper()
	content, err := ioutil.ReadFile(env.kernelPath)
	assert.NoError(t, err)
	return content
}

// missingKey returns a key path that doesn't exist, downgrading the
// signature check to a warning.
func (env *testEnv) missingKey() string {
	return filepath.Join(env.dir, "no-such-key.pem")
}

func writeAll(t *testing.T, performer *Performer, payload []byte) {
	t.Helper()
	n, err := performer.Write(payload)
	assert.NoError(t, err)
	assert.Equal(t, len(payload), n)
}

func Test_PerformReplaceFullBlock(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	manifest := rootfsManifest(4, replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)))
	payload := buildPayload(t, manifest, []byte("ABCD"))

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())
	assert.NoError(t, env.performer.VerifyPayload(env.missingKey(), payloadHash(payload), uint64(len(payload))))

	assert.Equal(t, []byte("ABCD"), env.rootfs(t)[0:4])
}

func Test_PerformReplaceZeroPadsTail(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), []byte("xxxxxxxx"), make([]byte, 8))

	manifest := rootfsManifest(4, replaceOp(InstallOperation_REPLACE, 0, 5, makeExtent(0, 2)))
	payload := buildPayload(t, manifest, []byte("HELLO"))

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())

	assert.Equal(t, []byte("HELLO\x00\x00\x00"), env.rootfs(t))
}

func Test_PerformReplaceBz(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 16), make([]byte, 8))

	compressed := unhex(t, bzXYZHex)
	manifest := rootfsManifest(4,
		replaceOp(InstallOperation_REPLACE_BZ, 0, uint64(len(compressed)), makeExtent(3, 1)))
	payload := buildPayload(t, manifest, compressed)

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())

	assert.Equal(t, []byte("XYZ\x00"), env.rootfs(t)[12:16])
}

func Test_PerformMove(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), []byte("AAAABBBB"), make([]byte, 8))

	manifest := rootfsManifest(4,
		moveOp([]*Extent{makeExtent(0, 1)}, []*Extent{makeExtent(1, 1)}))
	payload := buildPayload(t, manifest, nil)

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())

	assert.Equal(t, []byte("AAAAAAAA"), env.rootfs(t))
}

func Test_PerformKernelOperations(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	manifest := &DeltaArchiveManifest{
		InstallOperations: []*InstallOperation{
			replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)),
		},
		KernelInstallOperations: []*InstallOperation{
			replaceOp(InstallOperation_REPLACE, 4, 4, makeExtent(0, 1)),
		},
		BlockSize: proto.Uint32(4),
	}
	payload := buildPayload(t, manifest, []byte("ROOTKERN"))

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())

	assert.Equal(t, []byte("ROOT"), env.rootfs(t)[0:4])
	assert.Equal(t, []byte("KERN"), env.kernel(t)[0:4])
}

func writeFakeBspatch(t *testing.T, dir string, output string) string {
	t.Helper()

	script := "#!/bin/sh\nprintf '" + output + "' | dd of=\"$2\" bs=1 seek=0 conv=notrunc 2>/dev/null\n"
	path := filepath.Join(dir, "fake-bspatch")
	assert.NoError(t, ioutil.WriteFile(path, []byte(script), 0755))
	return path
}

func Test_PerformBsdiffZeroesTail(t *testing.T) {
	initial := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	env := newTestEnv(t, prefs.NewMemStore(), initial, make([]byte, 8))
	env.performer.BspatchPath = writeFakeBspatch(t, env.dir, "WORLD")

	patch := []byte("FAKEPATCH")
	manifest := rootfsManifest(4,
		bsdiffOp(0, uint64(len(patch)),
			[]*Extent{makeExtent(0, 1)}, 4,
			[]*Extent{makeExtent(0, 2)}, 5))
	payload := buildPayload(t, manifest, patch)

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())

	content := env.rootfs(t)
	assert.Equal(t, []byte("WORLD"), content[0:5])
	assert.Equal(t, []byte{0, 0, 0}, content[5:8])
}

func Test_PerformBsdiffFailingPatch(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	script := filepath.Join(env.dir, "failing-bspatch")
	assert.NoError(t, ioutil.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0755))
	env.performer.BspatchPath = script

	patch := []byte("NOPE")
	manifest := rootfsManifest(4,
		bsdiffOp(0, uint64(len(patch)),
			[]*Extent{makeExtent(0, 1)}, 4,
			[]*Extent{makeExtent(1, 1)}, 4))
	payload := buildPayload(t, manifest, patch)

	_, err := env.performer.Write(payload)
	assert.Error(t, err)
}

func multiOpPayload(t *testing.T) []byte {
	manifest := rootfsManifest(4,
		replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)),
		moveOp([]*Extent{makeExtent(0, 1)}, []*Extent{makeExtent(2, 1)}),
		replaceOp(InstallOperation_REPLACE, 4, 5, makeExtent(3, 2)),
	)
	return buildPayload(t, manifest, []byte("AAAAHELLO"))
}

func Test_SplitWriteEquivalence(t *testing.T) {
	initial := []byte("11112222333344445555")
	payload := multiOpPayload(t)

	single := newTestEnv(t, prefs.NewMemStore(), append([]byte(nil), initial...), make([]byte, 8))
	writeAll(t, single.performer, payload)
	assert.NoError(t, single.performer.Close())

	split := newTestEnv(t, prefs.NewMemStore(), append([]byte(nil), initial...), make([]byte, 8))
	for _, b := range payload {
		n, err := split.performer.Write([]byte{b})
		assert.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	assert.NoError(t, split.performer.Close())

	assert.Equal(t, single.rootfs(t), split.rootfs(t))

	singleOp, err := single.store.GetInt64(prefs.UpdateStateNextOperation)
	assert.NoError(t, err)
	splitOp, err := split.store.GetInt64(prefs.UpdateStateNextOperation)
	assert.NoError(t, err)
	assert.Equal(t, singleOp, splitOp)

	singleOffset, err := single.store.GetInt64(prefs.UpdateStateNextDataOffset)
	assert.NoError(t, err)
	splitOffset, err := split.store.GetInt64(prefs.UpdateStateNextDataOffset)
	assert.NoError(t, err)
	assert.Equal(t, singleOffset, splitOffset)
}

// recordingPrefs captures the sequence of next-operation writes, to
// pin down checkpoint ordering.
type recordingPrefs struct {
	prefs.Prefs
	nextOps []int64
}

func (rp *recordingPrefs) SetInt64(key string, value int64) error {
	if key == prefs.UpdateStateNextOperation {
		rp.nextOps = append(rp.nextOps, value)
	}
	return rp.Prefs.SetInt64(key, value)
}

func Test_CheckpointOrdering(t *testing.T) {
	store := &recordingPrefs{Prefs: prefs.NewMemStore()}
	env := newTestEnv(t, store, []byte("11112222"), make([]byte, 8))

	manifest := rootfsManifest(4,
		replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)),
		moveOp([]*Extent{makeExtent(0, 1)}, []*Extent{makeExtent(1, 1)}),
	)
	payload := buildPayload(t, manifest, []byte("XXXX"))

	writeAll(t, env.performer, payload)

	// REPLACE consumed data: clear, stamp 1. MOVE is non-idempotent:
	// clear before executing, then stamp 2 (no data consumed).
	assert.Equal(t, []int64{prefs.OperationInvalid, 1, prefs.OperationInvalid, 2}, store.nextOps)
}

func Test_CheckpointHashContextInvariant(t *testing.T) {
	store := prefs.NewMemStore()
	env := newTestEnv(t, store, make([]byte, 16), make([]byte, 8))

	payload := multiOpPayload(t)
	writeAll(t, env.performer, payload)

	offset, err := store.GetInt64(prefs.UpdateStateNextDataOffset)
	assert.NoError(t, err)

	context, err := store.GetString(prefs.UpdateStateSHA256Context)
	assert.NoError(t, err)

	restored := NewSHA256Calculator()
	assert.NoError(t, restored.SetContext(context))
	assert.NoError(t, restored.Finalize())

	prefix := payload[:env.performer.ManifestMetadataSize()+uint64(offset)]
	expected := sha256.Sum256(prefix)
	assert.Equal(t, expected[:], restored.RawHash())
}

func Test_ResumeAcrossInterruption(t *testing.T) {
	initial := make([]byte, 16)
	payload := multiOpPayload(t)
	hash := payloadHash(payload)

	// uninterrupted reference run
	reference := newTestEnv(t, prefs.NewMemStore(), append([]byte(nil), initial...), make([]byte, 8))
	writeAll(t, reference.performer, payload)
	assert.NoError(t, reference.performer.Close())

	// interrupted run: feed through the first operation's blob, then
	// drop the performer on the floor
	store := prefs.NewMemStore()
	assert.NoError(t, store.SetString(prefs.UpdateCheckResponseHash, hash))
	env := newTestEnv(t, store, append([]byte(nil), initial...), make([]byte, 8))

	metadataSize := uint64(len(payload) - 9) // blob region is "AAAAHELLO"
	writeAll(t, env.performer, payload[:metadataSize+4])
	assert.Equal(t, metadataSize, env.performer.ManifestMetadataSize())

	assert.True(t, CanResumeUpdate(store, hash))
	assert.False(t, CanResumeUpdate(store, "some other hash"))

	// reconstruct and resume
	resumed := env.newPerformer(t)
	assert.NoError(t, resumed.ResumeUpdate())

	writeAll(t, resumed, payload[:metadataSize])
	writeAll(t, resumed, payload[metadataSize+resumed.BufferOffset():])
	assert.NoError(t, resumed.Close())
	assert.NoError(t, resumed.VerifyPayload(env.missingKey(), hash, uint64(len(payload))))

	assert.Equal(t, reference.rootfs(t), env.rootfs(t))
}

func Test_CloseWithPendingBytes(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	manifest := rootfsManifest(4, replaceOp(InstallOperation_REPLACE, 0, 8, makeExtent(0, 2)))
	payload := buildPayload(t, manifest, []byte("ABCD")) // declares 8, ships 4

	writeAll(t, env.performer, payload)
	err := env.performer.Close()
	assert.Error(t, err)
	assert.Equal(t, ErrBufferNotEmpty, errorCause(err))
}

func Test_BadMagic(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	payload := buildPayload(t, rootfsManifest(4), nil)
	payload[0] = 'X'

	_, err := env.performer.Write(payload)
	assert.Error(t, err)
	assert.Equal(t, ErrFormat, errorCause(err))
}

func Test_BadVersion(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	payload := buildPayload(t, rootfsManifest(4), nil)
	binary.BigEndian.PutUint64(payload[len(Magic):], 7)

	_, err := env.performer.Write(payload)
	assert.Error(t, err)
	assert.Equal(t, ErrFormat, errorCause(err))
}

func Test_StaleDataOffset(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	// the second operation points back into bytes the first already
	// consumed
	manifest := rootfsManifest(4,
		replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)),
		replaceOp(InstallOperation_REPLACE, 2, 2, makeExtent(1, 1)),
	)
	payload := buildPayload(t, manifest, []byte("ABCD"))

	_, err := env.performer.Write(payload)
	assert.Error(t, err)
}

func Test_GapInPayload(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	// first operation's blob starts at 2, leaving an unclaimed gap the
	// performer can never skip
	manifest := rootfsManifest(4, replaceOp(InstallOperation_REPLACE, 2, 2, makeExtent(0, 1)))
	payload := buildPayload(t, manifest, []byte("WXYZ"))

	_, err := env.performer.Write(payload)
	assert.Error(t, err)
}

func Test_VerifyPayloadFailures(t *testing.T) {
	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))

	manifest := rootfsManifest(4, replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)))
	payload := buildPayload(t, manifest, []byte("ABCD"))

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())

	// wrong expected hash
	assert.Error(t, env.performer.VerifyPayload(env.missingKey(), "bm90IHRoZSBoYXNo", uint64(len(payload))))
	// wrong expected size
	assert.Error(t, env.performer.VerifyPayload(env.missingKey(), payloadHash(payload), uint64(len(payload))+1))
	// all good, key missing: signature check skipped
	assert.NoError(t, env.performer.VerifyPayload(env.missingKey(), payloadHash(payload), uint64(len(payload))))
}

func writePublicKey(t *testing.T, dir string, name string, key *rsa.PublicKey) string {
	t.Helper()

	der, err := x509.MarshalPKIXPublicKey(key)
	assert.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	path := filepath.Join(dir, name)
	assert.NoError(t, ioutil.WriteFile(path, pemBytes, 0644))
	return path
}

func signedPayload(t *testing.T, signingKey *rsa.PrivateKey) []byte {
	t.Helper()

	// the signature blob's length is independent of the signature
	// bits, so a placeholder pins down the manifest first
	signatureSize := signingKey.PublicKey.Size()
	placeholder := &Signatures{
		Signatures: []*Signatures_Signature{{
			Version: proto.Uint32(SignatureVersion),
			Data:    make([]byte, signatureSize),
		}},
	}
	placeholderBytes, err := proto.Marshal(placeholder)
	assert.NoError(t, err)
	blobLength := uint64(len(placeholderBytes))

	signatureBlocks := (blobLength + 3) / 4
	manifest := &DeltaArchiveManifest{
		InstallOperations: []*InstallOperation{
			replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)),
			replaceOp(InstallOperation_REPLACE, 4, blobLength, makeExtent(1, signatureBlocks)),
		},
		BlockSize:        proto.Uint32(4),
		SignaturesOffset: proto.Uint64(4),
		SignaturesSize:   proto.Uint64(blobLength),
	}

	// the signed hash covers everything up to the signature bytes
	prefix := buildPayload(t, manifest, []byte("DATA"))
	digest := sha256.Sum256(prefix)
	signature, err := rsa.SignPKCS1v15(rand.Reader, signingKey, crypto.SHA256, digest[:])
	assert.NoError(t, err)

	blob := &Signatures{
		Signatures: []*Signatures_Signature{{
			Version: proto.Uint32(SignatureVersion),
			Data:    signature,
		}},
	}
	blobBytes, err := proto.Marshal(blob)
	assert.NoError(t, err)
	assert.Equal(t, int(blobLength), len(blobBytes))

	return append(prefix, blobBytes...)
}

func Test_SignatureVerification(t *testing.T) {
	signingKey, err := rsa.GenerateKey(rand.Reader, 1024)
	assert.NoError(t, err)

	payload := signedPayload(t, signingKey)

	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 256), make([]byte, 8))
	keyPath := writePublicKey(t, env.dir, "key.pub.pem", &signingKey.PublicKey)

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())
	assert.NoError(t, env.performer.VerifyPayload(keyPath, payloadHash(payload), uint64(len(payload))))

	// the signed hash context survives in the progress store
	signedContext, err := env.store.GetString(prefs.UpdateStateSignedSHA256Context)
	assert.NoError(t, err)
	assert.NotEmpty(t, signedContext)
}

func Test_SignatureVerificationWrongKey(t *testing.T) {
	signingKey, err := rsa.GenerateKey(rand.Reader, 1024)
	assert.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 1024)
	assert.NoError(t, err)

	payload := signedPayload(t, signingKey)

	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 256), make([]byte, 8))
	keyPath := writePublicKey(t, env.dir, "other.pub.pem", &otherKey.PublicKey)

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())
	assert.Error(t, env.performer.VerifyPayload(keyPath, payloadHash(payload), uint64(len(payload))))
}

func Test_VerifyPayloadMissingSignature(t *testing.T) {
	signingKey, err := rsa.GenerateKey(rand.Reader, 1024)
	assert.NoError(t, err)

	env := newTestEnv(t, prefs.NewMemStore(), make([]byte, 8), make([]byte, 8))
	keyPath := writePublicKey(t, env.dir, "key.pub.pem", &signingKey.PublicKey)

	// unsigned payload, but a key is present: that's an error
	manifest := rootfsManifest(4, replaceOp(InstallOperation_REPLACE, 0, 4, makeExtent(0, 1)))
	payload := buildPayload(t, manifest, []byte("ABCD"))

	writeAll(t, env.performer, payload)
	assert.NoError(t, env.performer.Close())
	assert.Error(t, env.performer.VerifyPayload(keyPath, payloadHash(payload), uint64(len(payload))))
}

func Test_CanResumeUpdatePreflight(t *testing.T) {
	hash := "c29tZSBoYXNo"

	freshStore := func() prefs.Prefs {
		store := prefs.NewMemStore()
		assert.NoError(t, store.SetInt64(prefs.UpdateStateNextOperation, 3))
		assert.NoError(t, store.SetString(prefs.UpdateCheckResponseHash, hash))
		assert.NoError(t, store.SetInt64(prefs.UpdateStateNextDataOffset, 12))
		assert.NoError(t, store.SetString(prefs.UpdateStateSHA256Context, "Y3R4"))
		assert.NoError(t, store.SetInt64(prefs.ManifestMetadataSize, 42))
		return store
	}

	assert.True(t, CanResumeUpdate(freshStore(), hash))
	assert.False(t, CanResumeUpdate(freshStore(), "different"))
	assert.False(t, CanResumeUpdate(prefs.NewMemStore(), hash))

	store := freshStore()
	assert.NoError(t, store.SetInt64(prefs.UpdateStateNextOperation, prefs.OperationInvalid))
	assert.False(t, CanResumeUpdate(store, hash))

	store = freshStore()
	assert.NoError(t, store.SetInt64(prefs.UpdateStateNextOperation, 0))
	assert.False(t, CanResumeUpdate(store, hash))

	store = freshStore()
	assert.NoError(t, store.SetInt64(prefs.ManifestMetadataSize, 0))
	assert.False(t, CanResumeUpdate(store, hash))

	store = freshStore()
	assert.NoError(t, store.SetString(prefs.UpdateStateSHA256Context, ""))
	assert.False(t, CanResumeUpdate(store, hash))
}

func Test_ResetUpdateProgress(t *testing.T) {
	store := prefs.NewMemStore()
	assert.NoError(t, store.SetInt64(prefs.UpdateStateNextOperation, 7))

	assert.NoError(t, ResetUpdateProgress(store))

	value, err := store.GetInt64(prefs.UpdateStateNextOperation)
	assert.NoError(t, err)
	assert.Equal(t, prefs.OperationInvalid, value)
}
