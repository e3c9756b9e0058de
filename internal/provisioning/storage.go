package provisioning

import (
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/logging"
)

// StorageMethod reads config.json from a removable storage mount. It
// resolves on the first poll: the file is either there and valid or the
// method declines.
type StorageMethod struct {
	fs  afero.Fs
	dir string
}

// NewStorageMethod reads dir/config.json from fs.
func NewStorageMethod(fs afero.Fs, dir string) *StorageMethod {
	return &StorageMethod{fs: fs, dir: dir}
}

// Kind implements Method.
func (m *StorageMethod) Kind() deviceconfig.Method {
	return deviceconfig.MethodRemovableStorage
}

// Path returns the file the method reads.
func (m *StorageMethod) Path() string {
	return filepath.Join(m.dir, deviceconfig.ProvisioningFile)
}

// Start implements Method.
func (m *StorageMethod) Start(now uint32) error {
	logging.LogProvisioning(m.Kind().String(), "reading", zap.String("path", m.Path()))
	return nil
}

// Poll implements Method.
func (m *StorageMethod) Poll(now uint32) Result {
	candidate, err := deviceconfig.ReadCandidateFile(m.fs, m.Path())
	if err != nil {
		return declined(err)
	}
	return ready(candidate)
}

// Stop implements Method.
func (m *StorageMethod) Stop() {}
