package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/logging"
)

// Web form defaults.
const (
	DefaultWebFormAddr    = "192.168.4.1:80"
	DefaultWebFormTimeout = 5 * time.Minute

	maxFormBody = 4096
)

// Advertiser announces the web form on the local network. The returned
// stop function withdraws the announcement.
type Advertiser interface {
	Advertise(instance string, port int) (stop func(), err error)
}

// SaveResponse is the body of every /save-config reply.
type SaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResponse is the body of /status.
type StatusResponse struct {
	Device           string `json:"device"`
	State            string `json:"state"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

// WebFormMethod serves a configuration form over HTTP, normally on the
// access point address. Submissions are validated in the handler and the
// first valid one is handed to Poll.
type WebFormMethod struct {
	addr       string
	timeout    time.Duration
	device     string
	advertiser Advertiser

	listener   net.Listener
	server     *http.Server
	stopAdvert func()
	candidates chan deviceconfig.ConfigRecord
	received   atomic.Bool
	remaining  atomic.Int64
	wait       deadline
}

// NewWebFormMethod creates a web form method listening on addr. advertiser
// may be nil.
func NewWebFormMethod(addr, device string, timeout time.Duration, advertiser Advertiser) *WebFormMethod {
	if addr == "" {
		addr = DefaultWebFormAddr
	}
	if timeout <= 0 {
		timeout = DefaultWebFormTimeout
	}
	return &WebFormMethod{
		addr:       addr,
		timeout:    timeout,
		device:     device,
		advertiser: advertiser,
	}
}

// Kind implements Method.
func (m *WebFormMethod) Kind() deviceconfig.Method {
	return deviceconfig.MethodWifiAccessPoint
}

// Addr returns the address the form is served on, once started.
func (m *WebFormMethod) Addr() string {
	if m.listener == nil {
		return m.addr
	}
	return m.listener.Addr().String()
}

// Router returns the form's routes.
func (m *WebFormMethod) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", m.handleForm).Methods(http.MethodGet)
	r.HandleFunc("/save-config", m.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/status", m.handleStatus).Methods(http.MethodGet)
	return r
}

// Start implements Method.
func (m *WebFormMethod) Start(now uint32) error {
	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		return deviceconfig.NewConnectionError(fmt.Sprintf("failed to listen on %s", m.addr), err)
	}

	m.listener = listener
	m.candidates = make(chan deviceconfig.ConfigRecord, 1)
	m.received.Store(false)
	m.wait.arm(now, m.timeout)
	m.remaining.Store(int64(m.timeout / time.Second))
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Web form server failed", zap.Error(err))
		}
	}(m.server, listener)

	if m.advertiser != nil {
		port := listener.Addr().(*net.TCPAddr).Port
		stop, err := m.advertiser.Advertise(m.device, port)
		if err != nil {
			logging.Warn("Failed to advertise web form", zap.Error(err))
		} else {
			m.stopAdvert = stop
		}
	}

	logging.LogProvisioning(m.Kind().String(), "serving",
		zap.String("addr", m.Addr()),
		zap.Duration("timeout", m.timeout))
	return nil
}

// Poll implements Method.
func (m *WebFormMethod) Poll(now uint32) Result {
	m.remaining.Store(int64(m.wait.remaining(now) / time.Second))

	select {
	case candidate := <-m.candidates:
		return ready(candidate)
	default:
	}

	if m.wait.expired(now) {
		return declined(deviceconfig.NewProvisioningTimeoutError(m.Kind()))
	}
	return pending()
}

// Stop implements Method.
func (m *WebFormMethod) Stop() {
	if m.stopAdvert != nil {
		m.stopAdvert()
		m.stopAdvert = nil
	}
	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := m.server.Shutdown(ctx); err != nil {
			logging.Warn("Web form shutdown failed", zap.Error(err))
		}
		m.server = nil
		m.listener = nil
	}
}

func (m *WebFormMethod) handleForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, formPage)
}

func (m *WebFormMethod) handleSave(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SaveResponse{Message: "Request body too large"})
		return
	}

	payload, err := deviceconfig.ParsePayload(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, SaveResponse{Message: "Invalid JSON"})
		return
	}

	candidate := payload.Record()
	if err := deviceconfig.CheckCandidate(candidate); err != nil {
		writeJSON(w, http.StatusBadRequest, SaveResponse{Message: deviceconfig.GetShortErrorMessage(err)})
		return
	}

	select {
	case m.candidates <- candidate:
		m.received.Store(true)
		logging.LogProvisioning(m.Kind().String(), "received",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Strings("fields", payload.Fields()))
		writeJSON(w, http.StatusOK, SaveResponse{Success: true, Message: "Configuration received"})
	default:
		writeJSON(w, http.StatusConflict, SaveResponse{Message: "Configuration already received"})
	}
}

func (m *WebFormMethod) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := "waiting"
	if m.received.Load() {
		state = "received"
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Device:           m.device,
		State:            state,
		RemainingSeconds: m.remaining.Load(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

const formPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>relaynode setup</title>
<style>
body { font-family: sans-serif; max-width: 28em; margin: 2em auto; }
label { display: block; margin-top: 0.8em; }
input { width: 100%; }
#result { margin-top: 1em; font-weight: bold; }
</style>
</head>
<body>
<h1>relaynode setup</h1>
<form id="cfg">
<label>WiFi SSID <input name="wifi_ssid" maxlength="31" required></label>
<label>WiFi password <input name="wifi_password" type="password" maxlength="63" required></label>
<label>Backend host <input name="backend_host" maxlength="63" required></label>
<label>Backend port <input name="backend_port" type="number" min="1" max="65535" value="3001"></label>
<label><input name="use_https" type="checkbox" style="width:auto"> Use TLS</label>
<label>Device name <input name="device_name" maxlength="31" value="ESP32-Device"></label>
<label>Device secret <input name="device_secret" type="password" maxlength="64" required></label>
<label>OTA password <input name="ota_password" type="password" maxlength="31"></label>
<p><button type="submit">Save</button></p>
</form>
<div id="result"></div>
<script>
document.getElementById('cfg').addEventListener('submit', async (e) => {
  e.preventDefault();
  const f = e.target;
  const body = {
    wifi_ssid: f.wifi_ssid.value,
    wifi_password: f.wifi_password.value,
    backend_host: f.backend_host.value,
    backend_port: parseInt(f.backend_port.value || '3001', 10),
    use_https: f.use_https.checked,
    device_name: f.device_name.value,
    device_secret: f.device_secret.value,
    ota_password: f.ota_password.value
  };
  const res = await fetch('/save-config', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify(body)
  });
  const out = await res.json();
  document.getElementById('result').textContent = out.message;
});
</script>
</body>
</html>
`
