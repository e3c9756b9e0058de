package deviceconfig

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/logging"
	"github.com/muurk/relaynode/internal/nvs"
)

const (
	// Namespace is the BlobStore namespace holding the configuration.
	Namespace = "relaynode"
	// RecordKey is the key of the encoded ConfigRecord.
	RecordKey = "config"
	// MethodKey is the key of the one-byte provisioning method.
	MethodKey = "method"
)

// Store owns the persisted configuration record.
//
// Current only changes after a successful Load or Commit; a failed Commit
// leaves Current as it was.
type Store struct {
	blobs   nvs.BlobStore
	current ConfigRecord
	method  Method
	loaded  bool
}

// NewStore creates a Store over blobs. Nothing is read until Load.
func NewStore(blobs nvs.BlobStore) *Store {
	return &Store{blobs: blobs}
}

// Load reads and verifies the stored record.
//
// A missing or wrongly sized blob is a storage error; a checksum mismatch is
// a validation error.
func (s *Store) Load() (ConfigRecord, error) {
	data, err := s.blobs.Get(Namespace, RecordKey)
	if errors.Is(err, nvs.ErrNotFound) {
		return ConfigRecord{}, NewStorageError("no configuration stored", err)
	}
	if err != nil {
		return ConfigRecord{}, NewStorageError("failed to read configuration", err)
	}

	if len(data) != RecordSize {
		return ConfigRecord{}, NewStorageError(
			fmt.Sprintf("stored configuration is %d bytes, want %d", len(data), RecordSize), nil)
	}

	if !VerifyChecksum(data) {
		logging.LogRawBytes("Configuration checksum mismatch", data[:checksumOffset])
		return ConfigRecord{}, NewValidationError("configuration checksum mismatch")
	}

	rec, err := Decode(data)
	if err != nil {
		return ConfigRecord{}, NewStorageError("failed to decode configuration", err)
	}

	s.current = rec
	s.loaded = true
	s.method = s.loadMethod()

	logging.Info("Configuration loaded",
		zap.Uint32("version", rec.Version),
		zap.String("device_name", rec.DeviceName),
		zap.String("method", s.method.String()),
	)
	return rec, nil
}

// Commit persists candidate as the new configuration. The version becomes
// the last committed version plus one (1 when nothing was loaded or
// committed) and the checksum is recomputed. Candidates are expected to
// have passed ValidateCandidate. The provisioning method is recorded as
// MethodNone.
func (s *Store) Commit(candidate ConfigRecord) error {
	return s.CommitWithMethod(candidate, MethodNone)
}

// CommitWithMethod commits candidate and records how it was provisioned.
// A failure to persist the method is logged; the record itself is already
// committed at that point.
func (s *Store) CommitWithMethod(candidate ConfigRecord, method Method) error {
	if err := s.commit(candidate); err != nil {
		return err
	}

	s.method = method
	if _, err := s.blobs.Put(Namespace, MethodKey, []byte{byte(method)}); err != nil {
		logging.Warn("Failed to persist provisioning method",
			zap.String("method", method.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *Store) commit(candidate ConfigRecord) error {
	next := uint32(1)
	if s.loaded {
		next = s.current.Version + 1
	}

	candidate.Version = next
	buf := Encode(candidate)
	binary.LittleEndian.PutUint32(buf[checksumOffset:], Checksum(buf[:checksumOffset]))

	n, err := s.blobs.Put(Namespace, RecordKey, buf[:])
	if err != nil {
		return NewStorageError("failed to write configuration", err)
	}
	if n != RecordSize {
		return NewStorageError(fmt.Sprintf("short write: %d of %d bytes", n, RecordSize), nil)
	}

	// Current is what Load will return for the bytes just written.
	sealed, _ := Decode(buf[:])
	s.current = sealed
	s.loaded = true

	logging.Info("Configuration committed",
		zap.Uint32("version", sealed.Version),
		zap.String("device_name", sealed.DeviceName),
	)
	return nil
}

// Reset erases the stored record and method. A later Load fails with a
// storage error.
func (s *Store) Reset() error {
	if err := s.blobs.Erase(Namespace, RecordKey); err != nil {
		return NewStorageError("failed to erase configuration", err)
	}
	if err := s.blobs.Erase(Namespace, MethodKey); err != nil {
		return NewStorageError("failed to erase provisioning method", err)
	}

	s.current = ConfigRecord{}
	s.method = MethodNone
	s.loaded = false

	logging.Info("Configuration reset")
	return nil
}

// Current returns the last loaded or committed record, or the zero record
// before either happened.
func (s *Store) Current() ConfigRecord {
	return s.current
}

// Loaded reports whether Current holds a loaded or committed record.
func (s *Store) Loaded() bool {
	return s.loaded
}

// Method returns how the current record was provisioned.
func (s *Store) Method() Method {
	return s.method
}

func (s *Store) loadMethod() Method {
	data, err := s.blobs.Get(Namespace, MethodKey)
	if err != nil || len(data) != 1 || Method(data[0]) > MethodCompiledDefaults {
		return MethodNone
	}
	return Method(data[0])
}
