// Package prefs is the small durable key-value store the update
// performer checkpoints into. Values are typed (int64 or string);
// implementations must make each Set durable before returning, since
// the checkpoint protocol's crash safety depends on write ordering.
package prefs

import "github.com/pkg/errors"

// Keys the performer reads and writes.
const (
	// ManifestMetadataSize is the byte count of header + manifest
	// before the blob region.
	ManifestMetadataSize = "manifest-metadata-size"

	// UpdateStateNextOperation is the index of the next operation to
	// execute. OperationInvalid means "not resumable".
	UpdateStateNextOperation = "update-state-next-operation"

	// UpdateStateNextDataOffset is the blob-region offset at the last
	// checkpoint.
	UpdateStateNextDataOffset = "update-state-next-data-offset"

	// UpdateStateSHA256Context is the serialized hash state at the
	// last checkpoint.
	UpdateStateSHA256Context = "update-state-sha256-context"

	// UpdateStateSignedSHA256Context is the hash state captured at
	// the signature boundary.
	UpdateStateSignedSHA256Context = "update-state-signed-sha256-context"

	// UpdateCheckResponseHash is the payload hash announced by the
	// update metadata server.
	UpdateCheckResponseHash = "update-check-response-hash"
)

// OperationInvalid is the UpdateStateNextOperation sentinel for "do
// not resume".
const OperationInvalid int64 = -1

// ErrNoKey is returned by Get* for keys that were never set.
var ErrNoKey = errors.New("prefs: no such key")

type Prefs interface {
	GetInt64(key string) (int64, error)
	SetInt64(key string, value int64) error
	GetString(key string) (string, error)
	SetString(key string, value string) error
}
