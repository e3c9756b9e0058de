// Package deviceconfig owns the relaynode configuration record: its stored
// binary layout, checksum, validation and the JSON provisioning document.
//
// # Configuration Record
//
// A ConfigRecord carries WiFi credentials, the backend endpoint (host, port,
// TLS) and the device identity (name, shared secret, OTA password). It is
// stored as a fixed 300-byte blob under namespace "relaynode", key
// "config", with a trailing checksum over every other byte. The layout lives
// in layout.go and nowhere else.
//
// # Usage Example
//
//	store := deviceconfig.NewStore(nvs.NewFile(path))
//
//	rec, err := store.Load()
//	if deviceconfig.IsStorageError(err) || deviceconfig.IsValidationError(err) {
//	    // no usable record: provision one
//	}
//
//	candidate, err := deviceconfig.CandidateFromJSON(data)
//	if err == nil {
//	    err = deviceconfig.CheckCandidate(candidate)
//	}
//	if err == nil {
//	    err = store.CommitWithMethod(candidate, deviceconfig.MethodRemovableStorage)
//	}
//
// Every commit recomputes the checksum and bumps the version by one.
//
// # Error Handling
//
// All errors returned by this package are *Error values carrying an
// ErrorType. Use the Is* predicates to classify them and
// GetTroubleshootingHint for operator-facing advice.
//
// # Thread Safety
//
// Store is owned by the agent loop and is not safe for concurrent use.
package deviceconfig
