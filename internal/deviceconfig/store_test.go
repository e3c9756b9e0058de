package deviceconfig

import (
	"errors"
	"testing"

	"github.com/muurk/relaynode/internal/nvs"
)

func validRecord() ConfigRecord {
	return ConfigRecord{
		WiFiSSID:     "workshop",
		WiFiPassword: "hunter2hunter2",
		BackendHost:  "10.1.2.3",
		BackendPort:  3001,
		UseTLS:       false,
		DeviceSecret: "0123456789abcdef",
		DeviceName:   "relay-a",
		OTAPassword:  "otapw-77",
	}
}

// shortWriter is a BlobStore that stores only part of every blob.
type shortWriter struct {
	*nvs.Memory
}

func (s shortWriter) Put(namespace, key string, data []byte) (int, error) {
	return s.Memory.Put(namespace, key, data[:len(data)/2])
}

// failingStore is a BlobStore whose writes always fail.
type failingStore struct {
	*nvs.Memory
}

func (f failingStore) Put(string, string, []byte) (int, error) {
	return 0, errors.New("flash worn out")
}

func TestStoreLoadEmpty(t *testing.T) {
	s := NewStore(nvs.NewMemory())

	_, err := s.Load()
	if !IsStorageError(err) {
		t.Fatalf("Load() error = %v, want storage error", err)
	}
	if s.Loaded() {
		t.Error("Loaded() = true after failed Load")
	}
	if s.Current() != (ConfigRecord{}) {
		t.Errorf("Current() = %+v, want zero record", s.Current())
	}
}

func TestStoreCommitLoadRoundTrip(t *testing.T) {
	blobs := nvs.NewMemory()
	s := NewStore(blobs)

	rec := validRecord()
	if err := s.Commit(rec); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if s.Current().Version != 1 {
		t.Errorf("first commit version = %d, want 1", s.Current().Version)
	}

	fresh := NewStore(blobs)
	got, err := fresh.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := rec
	want.Version = 1
	want.Checksum = want.ComputeChecksum()
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if !got.Valid() {
		t.Error("loaded record is not Valid()")
	}
}

func TestStoreCommitIncrementsVersion(t *testing.T) {
	blobs := nvs.NewMemory()
	s := NewStore(blobs)
	if err := s.Commit(validRecord()); err != nil {
		t.Fatal(err)
	}

	// A new store picks up from the persisted version.
	s2 := NewStore(blobs)
	loaded, err := s2.Load()
	if err != nil {
		t.Fatal(err)
	}

	next := validRecord()
	next.DeviceName = "relay-b"
	if err := s2.Commit(next); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if got := s2.Current().Version; got != loaded.Version+1 {
		t.Errorf("version after commit = %d, want %d", got, loaded.Version+1)
	}
	if s2.Current().DeviceName != "relay-b" {
		t.Errorf("Current().DeviceName = %q, want relay-b", s2.Current().DeviceName)
	}
}

func TestStoreDetectsEverySingleByteCorruption(t *testing.T) {
	blobs := nvs.NewMemory()
	if err := NewStore(blobs).Commit(validRecord()); err != nil {
		t.Fatal(err)
	}
	pristine, _ := blobs.Get(Namespace, RecordKey)

	for i := 0; i < RecordSize; i++ {
		corrupt := append([]byte(nil), pristine...)
		corrupt[i] ^= 0xA5
		blobs.Put(Namespace, RecordKey, corrupt)

		_, err := NewStore(blobs).Load()
		if !IsValidationError(err) {
			t.Fatalf("byte %d corrupted: Load() error = %v, want validation error", i, err)
		}
	}
}

func TestStoreWrongSize(t *testing.T) {
	blobs := nvs.NewMemory()
	blobs.Put(Namespace, RecordKey, make([]byte, RecordSize-1))

	if _, err := NewStore(blobs).Load(); !IsStorageError(err) {
		t.Errorf("Load() error = %v, want storage error", err)
	}
}

func TestStoreShortWrite(t *testing.T) {
	s := NewStore(shortWriter{nvs.NewMemory()})

	err := s.Commit(validRecord())
	if !IsStorageError(err) {
		t.Fatalf("Commit() error = %v, want storage error", err)
	}
	if s.Loaded() {
		t.Error("Current() updated after short write")
	}
}

func TestStoreFailedCommitKeepsCurrent(t *testing.T) {
	mem := nvs.NewMemory()
	good := NewStore(mem)
	if err := good.Commit(validRecord()); err != nil {
		t.Fatal(err)
	}

	s := NewStore(failingStore{mem})
	before, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}

	changed := validRecord()
	changed.BackendHost = "elsewhere"
	if err := s.Commit(changed); !IsStorageError(err) {
		t.Fatalf("Commit() error = %v, want storage error", err)
	}
	if s.Current() != before {
		t.Errorf("Current() = %+v, want unchanged %+v", s.Current(), before)
	}
}

func TestStoreReset(t *testing.T) {
	blobs := nvs.NewMemory()
	s := NewStore(blobs)
	if err := s.CommitWithMethod(validRecord(), MethodSerial); err != nil {
		t.Fatal(err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := s.Load(); !IsStorageError(err) {
		t.Errorf("Load() after Reset error = %v, want storage error", err)
	}
	if s.Method() != MethodNone {
		t.Errorf("Method() after Reset = %v, want none", s.Method())
	}
	if len(blobs.Keys(Namespace)) != 0 {
		t.Errorf("keys left after Reset: %v", blobs.Keys(Namespace))
	}

	// Version numbering restarts after a reset.
	if err := s.Commit(validRecord()); err != nil {
		t.Fatal(err)
	}
	if s.Current().Version != 1 {
		t.Errorf("version after Reset+Commit = %d, want 1", s.Current().Version)
	}
}

func TestStoreMethodPersists(t *testing.T) {
	blobs := nvs.NewMemory()
	if err := NewStore(blobs).CommitWithMethod(validRecord(), MethodCompiledDefaults); err != nil {
		t.Fatal(err)
	}

	s := NewStore(blobs)
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if s.Method() != MethodCompiledDefaults {
		t.Errorf("Method() = %v, want compiled-defaults", s.Method())
	}

	// A plain Commit records MethodNone.
	if err := s.Commit(validRecord()); err != nil {
		t.Fatal(err)
	}
	s2 := NewStore(blobs)
	s2.Load()
	if s2.Method() != MethodNone {
		t.Errorf("Method() after plain Commit = %v, want none", s2.Method())
	}
}

func TestStoreTruncatesOverlongFields(t *testing.T) {
	s := NewStore(nvs.NewMemory())

	rec := validRecord()
	rec.DeviceName = "a-device-name-that-is-far-too-long-for-its-field"
	if err := s.Commit(rec); err != nil {
		t.Fatal(err)
	}

	got := s.Current().DeviceName
	if len(got) != MaxNameLen {
		t.Errorf("committed name length = %d, want %d", len(got), MaxNameLen)
	}
	if !s.Current().Valid() {
		t.Error("committed record with truncated field is not Valid()")
	}
}

func TestStoreCommitWithEmbeddedNULRoundTrips(t *testing.T) {
	blobs := nvs.NewMemory()
	s := NewStore(blobs)

	rec := validRecord()
	rec.WiFiSSID = "lab\x00hidden"
	rec.OTAPassword = "\x00"
	if err := s.Commit(rec); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := NewStore(blobs).Load()
	if err != nil {
		t.Fatalf("Load() after commit error = %v", err)
	}
	if got.WiFiSSID != "lab" || got.OTAPassword != "" {
		t.Errorf("Load() strings = %q/%q, want cut at the NUL", got.WiFiSSID, got.OTAPassword)
	}
	if got != s.Current() {
		t.Errorf("Current() = %+v, want what Load returns %+v", s.Current(), got)
	}
}

func TestNULPayloadIsRejectedBeforeCommit(t *testing.T) {
	candidate, err := CandidateFromJSON([]byte(`{"wifi_ssid":"\u0000hidden","wifi_password":"pw","backend_host":"10.0.0.1","device_secret":"s3cret"}`))
	if err != nil {
		t.Fatalf("CandidateFromJSON() error = %v", err)
	}
	if err := CheckCandidate(candidate); !IsValidationError(err) {
		t.Errorf("CheckCandidate() = %v, want validation error", err)
	}
}

func TestStoreVersionRestartsAfterCorruptLoad(t *testing.T) {
	blobs := nvs.NewMemory()
	s := NewStore(blobs)
	for i := 0; i < 3; i++ {
		if err := s.Commit(validRecord()); err != nil {
			t.Fatal(err)
		}
	}
	raw, _ := blobs.Get(Namespace, RecordKey)
	raw[0] ^= 0xFF
	blobs.Put(Namespace, RecordKey, raw)

	s2 := NewStore(blobs)
	if _, err := s2.Load(); !IsValidationError(err) {
		t.Fatalf("Load() error = %v, want validation error", err)
	}
	if err := s2.Commit(validRecord()); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if got := s2.Current().Version; got != 1 {
		t.Errorf("version after corrupt Load = %d, want 1", got)
	}
}
