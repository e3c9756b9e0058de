package provisioning

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/muurk/relaynode/internal/clock"
	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/nvs"
)

// fakeConsole feeds queued lines and records everything written.
type fakeConsole struct {
	lines  []string
	out    strings.Builder
	closed bool
}

func (f *fakeConsole) Print(s string)   { f.out.WriteString(s) }
func (f *fakeConsole) Println(s string) { f.out.WriteString(s + "\n") }
func (f *fakeConsole) Close() error     { f.closed = true; return nil }

func (f *fakeConsole) Line() (string, bool) {
	if len(f.lines) == 0 {
		return "", false
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, true
}

func (f *fakeConsole) feed(lines ...string) {
	f.lines = append(f.lines, lines...)
}

type commit struct {
	record deviceconfig.ConfigRecord
	method deviceconfig.Method
}

type fakeCommitter struct {
	commits []commit
	err     error
}

func (f *fakeCommitter) CommitWithMethod(r deviceconfig.ConfigRecord, m deviceconfig.Method) error {
	if f.err != nil {
		return f.err
	}
	f.commits = append(f.commits, commit{record: r, method: m})
	return nil
}

// stubMethod returns the same result on every poll.
type stubMethod struct {
	kind     deviceconfig.Method
	result   Result
	startErr error
	starts   int
	stops    int
}

func (s *stubMethod) Kind() deviceconfig.Method { return s.kind }
func (s *stubMethod) Start(uint32) error        { s.starts++; return s.startErr }
func (s *stubMethod) Poll(uint32) Result        { return s.result }
func (s *stubMethod) Stop()                     { s.stops++ }

func validCandidate() deviceconfig.ConfigRecord {
	return deviceconfig.ConfigRecord{
		WiFiSSID:     "shop-floor",
		WiFiPassword: "hunter22",
		BackendHost:  "backend.local",
		BackendPort:  3001,
		DeviceSecret: "s3cr3t-device-key",
		DeviceName:   "relay-7",
	}
}

func newTestCoordinator() (*Coordinator, *clock.Manual, *fakeConsole, *fakeCommitter) {
	clk := clock.NewManual(1000)
	console := &fakeConsole{}
	store := &fakeCommitter{}
	return NewCoordinator(store, clk, console, DefaultConfig()), clk, console, store
}

func TestCoordinatorSelectionTimeoutCommitsDefaults(t *testing.T) {
	c, clk, console, store := newTestCoordinator()
	c.Start()

	if got := c.Tick(); got != PhaseSelectingMethod {
		t.Fatalf("Tick() = %v, want %v", got, PhaseSelectingMethod)
	}

	clk.Advance(DefaultSelectionTimeout - time.Millisecond)
	if got := c.Tick(); got != PhaseSelectingMethod {
		t.Fatalf("Tick() before timeout = %v, want %v", got, PhaseSelectingMethod)
	}

	clk.Advance(time.Millisecond)
	if got := c.Tick(); got != PhaseDone {
		t.Fatalf("Tick() after timeout = %v, want %v", got, PhaseDone)
	}

	if len(store.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(store.commits))
	}
	if store.commits[0].method != deviceconfig.MethodCompiledDefaults {
		t.Errorf("committed method = %v, want %v", store.commits[0].method, deviceconfig.MethodCompiledDefaults)
	}
	if store.commits[0].record != CompiledDefaults() {
		t.Errorf("committed record = %+v, want compiled defaults", store.commits[0].record)
	}
	if c.Method() != deviceconfig.MethodCompiledDefaults {
		t.Errorf("Method() = %v, want %v", c.Method(), deviceconfig.MethodCompiledDefaults)
	}

	out := console.out.String()
	for _, want := range []string{"Select method (1-5)", "Timeout", "NOT SECURE FOR PRODUCTION"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q:\n%s", want, out)
		}
	}
}

func TestCoordinatorWithoutConsoleTimesOut(t *testing.T) {
	clk := clock.NewManual(0)
	store := &fakeCommitter{}
	c := NewCoordinator(store, clk, nil, DefaultConfig())
	c.Start()

	clk.Advance(DefaultSelectionTimeout)
	if got := c.Tick(); got != PhaseDone {
		t.Fatalf("Tick() = %v, want %v", got, PhaseDone)
	}
	if len(store.commits) != 1 {
		t.Errorf("commits = %d, want 1", len(store.commits))
	}
}

func TestCoordinatorInvalidChoiceReprompts(t *testing.T) {
	c, clk, console, store := newTestCoordinator()
	c.Start()

	console.feed("9")
	clk.Advance(4 * time.Second)
	if got := c.Tick(); got != PhaseSelectingMethod {
		t.Fatalf("Tick() = %v, want %v", got, PhaseSelectingMethod)
	}
	if !strings.Contains(console.out.String(), "Invalid choice. Please select 1-5.") {
		t.Errorf("expected invalid choice message, got:\n%s", console.out.String())
	}
	if c.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", c.Failures())
	}

	// The selection window is not extended by a bad choice.
	clk.Advance(6 * time.Second)
	if got := c.Tick(); got != PhaseDone {
		t.Fatalf("Tick() = %v, want %v", got, PhaseDone)
	}
	if len(store.commits) != 1 || store.commits[0].method != deviceconfig.MethodCompiledDefaults {
		t.Errorf("commits = %+v, want compiled defaults", store.commits)
	}
}

func TestCoordinatorUnavailableMethodReprompts(t *testing.T) {
	c, _, console, store := newTestCoordinator()
	c.Start()

	console.feed("4")
	if got := c.Tick(); got != PhaseSelectingMethod {
		t.Fatalf("Tick() = %v, want %v", got, PhaseSelectingMethod)
	}
	if !strings.Contains(console.out.String(), "remote-push is not available") {
		t.Errorf("expected unavailable message, got:\n%s", console.out.String())
	}
	if len(store.commits) != 0 {
		t.Errorf("commits = %d, want 0", len(store.commits))
	}
}

func TestCoordinatorMenuDefaultsChoice(t *testing.T) {
	c, _, console, store := newTestCoordinator()
	c.Start()

	console.feed("5")
	if got := c.Tick(); got != PhaseDone {
		t.Fatalf("Tick() = %v, want %v", got, PhaseDone)
	}
	if len(store.commits) != 1 || store.commits[0].method != deviceconfig.MethodCompiledDefaults {
		t.Errorf("commits = %+v, want compiled defaults", store.commits)
	}
}

func TestCoordinatorCommitsReadyCandidate(t *testing.T) {
	c, _, console, store := newTestCoordinator()
	stub := &stubMethod{kind: deviceconfig.MethodRemovableStorage, result: ready(validCandidate())}
	c.Register(stub)
	c.Start()

	console.feed("3")
	if got := c.Tick(); got != PhaseRunningMethod {
		t.Fatalf("Tick() = %v, want %v", got, PhaseRunningMethod)
	}
	if got := c.Tick(); got != PhaseDone {
		t.Fatalf("Tick() = %v, want %v", got, PhaseDone)
	}

	if len(store.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(store.commits))
	}
	if store.commits[0].record != validCandidate() {
		t.Errorf("committed %+v, want %+v", store.commits[0].record, validCandidate())
	}
	if store.commits[0].method != deviceconfig.MethodRemovableStorage {
		t.Errorf("method = %v, want %v", store.commits[0].method, deviceconfig.MethodRemovableStorage)
	}
	if stub.starts != 1 || stub.stops != 1 {
		t.Errorf("starts/stops = %d/%d, want 1/1", stub.starts, stub.stops)
	}
}

func TestCoordinatorNeverCommitsInvalidCandidates(t *testing.T) {
	tests := []struct {
		name  string
		clear func(r *deviceconfig.ConfigRecord)
	}{
		{"empty ssid", func(r *deviceconfig.ConfigRecord) { r.WiFiSSID = "" }},
		{"empty password", func(r *deviceconfig.ConfigRecord) { r.WiFiPassword = "" }},
		{"empty host", func(r *deviceconfig.ConfigRecord) { r.BackendHost = "" }},
		{"empty secret", func(r *deviceconfig.ConfigRecord) { r.DeviceSecret = "" }},
		{"ssid too long", func(r *deviceconfig.ConfigRecord) { r.WiFiSSID = strings.Repeat("s", deviceconfig.MaxSSIDLen+1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := validCandidate()
			tt.clear(&candidate)

			c, _, console, store := newTestCoordinator()
			stub := &stubMethod{kind: deviceconfig.MethodSerial, result: ready(candidate)}
			c.Register(stub)

			if err := c.StartWith(deviceconfig.MethodSerial); err != nil {
				t.Fatalf("StartWith() error = %v", err)
			}
			console.feed("1", "1")
			for i := 0; i < 10 && c.Phase() != PhaseDone; i++ {
				c.Tick()
			}

			if c.Phase() != PhaseDone {
				t.Fatalf("Phase() = %v, want %v", c.Phase(), PhaseDone)
			}
			for _, cm := range store.commits {
				if cm.record == candidate {
					t.Fatalf("invalid candidate was committed: %+v", cm.record)
				}
			}
			if len(store.commits) != 1 || store.commits[0].method != deviceconfig.MethodCompiledDefaults {
				t.Errorf("commits = %+v, want only compiled defaults", store.commits)
			}
			if stub.starts != DefaultMaxRetries {
				t.Errorf("method started %d times, want %d", stub.starts, DefaultMaxRetries)
			}
		})
	}
}

func TestCoordinatorRetriesThenFallsBack(t *testing.T) {
	c, _, console, store := newTestCoordinator()
	stub := &stubMethod{
		kind:   deviceconfig.MethodSerial,
		result: declined(deviceconfig.NewProvisioningTimeoutError(deviceconfig.MethodSerial)),
	}
	c.Register(stub)

	if err := c.StartWith(deviceconfig.MethodSerial); err != nil {
		t.Fatalf("StartWith() error = %v", err)
	}

	// First failure returns to the menu.
	if got := c.Tick(); got != PhaseSelectingMethod {
		t.Fatalf("Tick() = %v, want %v", got, PhaseSelectingMethod)
	}
	if c.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", c.Failures())
	}

	console.feed("1")
	c.Tick() // start
	c.Tick() // decline
	if c.Failures() != 2 {
		t.Errorf("Failures() = %d, want 2", c.Failures())
	}

	console.feed("1")
	c.Tick()
	if got := c.Tick(); got != PhaseDone {
		t.Fatalf("Tick() = %v, want %v", got, PhaseDone)
	}
	if len(store.commits) != 1 || store.commits[0].method != deviceconfig.MethodCompiledDefaults {
		t.Errorf("commits = %+v, want compiled defaults", store.commits)
	}
	if !strings.Contains(console.out.String(), "Too many failed attempts") {
		t.Errorf("expected fallback message, got:\n%s", console.out.String())
	}
}

func TestCoordinatorStartErrorCountsAsFailure(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	stub := &stubMethod{kind: deviceconfig.MethodWifiAccessPoint, startErr: errors.New("address in use")}
	c.Register(stub)

	if err := c.StartWith(deviceconfig.MethodWifiAccessPoint); err != nil {
		t.Fatalf("StartWith() error = %v", err)
	}
	if c.Phase() != PhaseSelectingMethod {
		t.Errorf("Phase() = %v, want %v", c.Phase(), PhaseSelectingMethod)
	}
	if c.Failures() != 1 {
		t.Errorf("Failures() = %d, want 1", c.Failures())
	}
}

func TestCoordinatorInvalidDefaults(t *testing.T) {
	clk := clock.NewManual(0)
	store := &fakeCommitter{}
	cfg := DefaultConfig()
	cfg.Defaults.BackendHost = ""
	c := NewCoordinator(store, clk, nil, cfg)
	c.Start()

	clk.Advance(DefaultSelectionTimeout)
	if got := c.Tick(); got != PhaseFailed {
		t.Fatalf("Tick() = %v, want %v", got, PhaseFailed)
	}
	if !errors.Is(c.Err(), ErrInvalidDefaults) {
		t.Errorf("Err() = %v, want ErrInvalidDefaults", c.Err())
	}
	if len(store.commits) != 0 {
		t.Errorf("commits = %d, want 0", len(store.commits))
	}
}

func TestCoordinatorDefaultsCommitFailure(t *testing.T) {
	clk := clock.NewManual(0)
	storageErr := deviceconfig.NewStorageError("disk full", nil)
	c := NewCoordinator(&fakeCommitter{err: storageErr}, clk, nil, DefaultConfig())

	if err := c.StartWith(deviceconfig.MethodCompiledDefaults); err == nil {
		t.Fatal("StartWith() error = nil, want storage error")
	}
	if c.Phase() != PhaseFailed {
		t.Errorf("Phase() = %v, want %v", c.Phase(), PhaseFailed)
	}
	if !deviceconfig.IsStorageError(c.Err()) {
		t.Errorf("Err() = %v, want storage error", c.Err())
	}
}

func TestCoordinatorStartWithUnknownMethod(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	if err := c.StartWith(deviceconfig.MethodRemotePush); err == nil {
		t.Error("StartWith() error = nil, want error for unregistered method")
	}
}

func TestCoordinatorConsoleFlowCommitsToStore(t *testing.T) {
	clk := clock.NewManual(0)
	console := &fakeConsole{}
	blobs := nvs.NewMemory()
	store := deviceconfig.NewStore(blobs)
	c := NewCoordinator(store, clk, console, DefaultConfig())
	c.Register(NewConsoleMethod(console, 0, 0))
	c.Start()

	console.feed("1", "shop-floor", "hunter22", "backend.local", "", "y", "relay-7", "s3cr3t-device-key", "ota-pass")
	for i := 0; i < 20 && c.Phase() != PhaseDone; i++ {
		c.Tick()
	}
	if c.Phase() != PhaseDone {
		t.Fatalf("Phase() = %v, want %v", c.Phase(), PhaseDone)
	}

	loaded, err := deviceconfig.NewStore(blobs).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.BackendHost != "backend.local" || loaded.BackendPort != 3001 || !loaded.UseTLS {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Version != 1 {
		t.Errorf("Version = %d, want 1", loaded.Version)
	}
	if store.Method() != deviceconfig.MethodSerial {
		t.Errorf("Method() = %v, want %v", store.Method(), deviceconfig.MethodSerial)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseSelectingMethod, "selecting-method"},
		{PhaseRunningMethod, "running-method"},
		{PhaseCommitting, "committing"},
		{PhaseDone, "done"},
		{PhaseFailed, "failed"},
		{Phase(42), "Phase(42)"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(tt.phase), got, tt.want)
		}
	}
}
