package delta

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"
	"os"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"

	"github.com/ottergrid/pave/prefs"
)

// extractSignatureMessage captures the payload signature blob when the
// current REPLACE operation is the one carrying it. The running hash
// is snapshotted first: the signature covers exactly the payload
// prefix up to, but not including, the signature bytes. The operation
// then proceeds as a normal REPLACE, so the blob also lands on the
// partition, and its bytes stay part of the download hash.
func (p *Performer) extractSignatureMessage(op *InstallOperation) error {
	if op.GetType() != InstallOperation_REPLACE ||
		p.manifest.SignaturesOffset == nil ||
		p.manifest.GetSignaturesOffset() != op.GetDataOffset() {
		return nil
	}

	if p.manifest.SignaturesSize == nil || p.manifest.GetSignaturesSize() != op.GetDataLength() {
		return errors.Errorf("signature op has data_length %d, manifest declares %d",
			op.GetDataLength(), p.manifest.GetSignaturesSize())
	}
	if len(p.signaturesMessageData) > 0 {
		return errors.New("signature message extracted twice")
	}
	if p.bufferOffset != p.manifest.GetSignaturesOffset() {
		return errors.Errorf("signature expected at offset %d, stream is at %d",
			p.manifest.GetSignaturesOffset(), p.bufferOffset)
	}
	if uint64(len(p.buffer)) < p.manifest.GetSignaturesSize() {
		return errors.New("signature message not fully buffered")
	}

	p.signaturesMessageData = append([]byte(nil), p.buffer[:p.manifest.GetSignaturesSize()]...)

	context, err := p.hashCalculator.Context()
	if err != nil {
		return err
	}
	p.signedHashContext = context
	err = p.Prefs.SetString(prefs.UpdateStateSignedSHA256Context, context)
	if err != nil {
		p.Consumer.Warnf("unable to store the signed hash context: %v", err)
	}

	p.Consumer.Infof("extracted signature data of size %d at %d",
		p.manifest.GetSignaturesSize(), p.manifest.GetSignaturesOffset())
	return nil
}

// loadPublicKey reads a PEM-encoded RSA public key.
func loadPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.Errorf("no PEM block in %s", path)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing public key %s", path)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.Errorf("%s is not an RSA public key", path)
	}
	return key, nil
}

// verifySignatureBlob parses a Signatures message and checks the
// version-1 signature against digest (RSA PKCS#1 v1.5, SHA-256).
func verifySignatureBlob(blob []byte, key *rsa.PublicKey, digest []byte) error {
	signatures := &Signatures{}
	err := proto.Unmarshal(blob, signatures)
	if err != nil {
		return errors.Wrap(err, "parsing signature message")
	}

	for _, signature := range signatures.GetSignatures() {
		if signature.GetVersion() != SignatureVersion {
			continue
		}
		err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest, signature.GetData())
		return errors.Wrap(err, "verifying payload signature")
	}
	return errors.Errorf("no version-%d signature in signature message", SignatureVersion)
}

// VerifyPayload validates the finished download: its hash, its size,
// and the embedded signature. Call it after Close. A missing public
// key file downgrades the signature check to a warning, which keeps
// development images usable; production callers ship the key.
func (p *Performer) VerifyPayload(publicKeyPath string, updateCheckResponseHash string, updateCheckResponseSize uint64) error {
	keyPath := publicKeyPath
	if keyPath == "" {
		keyPath = DefaultPublicKeyPath
	}
	p.Consumer.Infof("verifying delta payload, public key %s", keyPath)

	downloadHash := p.hashCalculator.Hash()
	if downloadHash == "" {
		return errors.New("payload hash not finalized; Close the performer first")
	}
	if downloadHash != updateCheckResponseHash {
		return errors.Errorf("payload hash %s doesn't match expected %s",
			downloadHash, updateCheckResponseHash)
	}

	if updateCheckResponseSize != p.manifestMetadataSize+p.bufferOffset {
		return errors.Errorf("payload size %d doesn't match expected %d",
			p.manifestMetadataSize+p.bufferOffset, updateCheckResponseSize)
	}

	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		p.Consumer.Warnf("not verifying signed delta payload: missing public key %s", keyPath)
		return nil
	}

	if len(p.signaturesMessageData) == 0 {
		return errors.New("payload carried no signature message")
	}
	key, err := loadPublicKey(keyPath)
	if err != nil {
		return err
	}

	signedHasher := NewSHA256Calculator()
	err = signedHasher.SetContext(p.signedHashContext)
	if err != nil {
		return errors.WithMessage(err, "restoring signed hash context")
	}
	err = signedHasher.Finalize()
	if err != nil {
		return err
	}

	return verifySignatureBlob(p.signaturesMessageData, key, signedHasher.RawHash())
}
