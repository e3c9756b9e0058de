package deviceconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Removable storage file names.
const (
	ProvisioningFile = "config.json"
	BackupFile       = "config_backup.json"
)

// backupDocument is a provisioning document with backup metadata. The extra
// fields are ignored when the file is read back as a Payload.
type backupDocument struct {
	Payload
	ConfigVersion uint32    `json:"config_version"`
	Method        string    `json:"method"`
	SavedAt       time.Time `json:"saved_at"`
}

// Backup writes r to dir/config_backup.json on fs. The write goes through a
// temporary file and a rename.
func Backup(fs afero.Fs, dir string, r ConfigRecord, method Method) (string, error) {
	doc := backupDocument{
		Payload:       PayloadFromRecord(r),
		ConfigVersion: r.Version,
		Method:        method.String(),
		SavedAt:       time.Now().UTC(),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup: %w", err)
	}

	if err := fs.MkdirAll(dir, 0700); err != nil {
		return "", NewStorageError("failed to create backup directory", err)
	}

	path := filepath.Join(dir, BackupFile)
	tmpPath := path + ".tmp"
	if err := afero.WriteFile(fs, tmpPath, data, 0600); err != nil {
		return "", NewStorageError("failed to write backup", err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		fs.Remove(tmpPath)
		return "", NewStorageError("failed to save backup", err)
	}

	return path, nil
}

// Restore reads dir/config_backup.json from fs and returns it as a
// validated candidate. Nothing is committed.
func Restore(fs afero.Fs, dir string) (ConfigRecord, error) {
	return ReadCandidateFile(fs, filepath.Join(dir, BackupFile))
}

// ReadCandidateFile reads a provisioning document from fs and returns it
// as a validated candidate. A missing file is a storage error; bad JSON or
// a failing candidate is a validation error.
func ReadCandidateFile(fs afero.Fs, path string) (ConfigRecord, error) {
	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) {
		return ConfigRecord{}, NewStorageError(fmt.Sprintf("%s not found", path), err)
	}
	if err != nil {
		return ConfigRecord{}, NewStorageError(fmt.Sprintf("failed to read %s", path), err)
	}

	candidate, err := CandidateFromJSON(data)
	if err != nil {
		return ConfigRecord{}, err
	}
	if err := CheckCandidate(candidate); err != nil {
		return ConfigRecord{}, err
	}
	return candidate, nil
}
