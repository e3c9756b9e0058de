package deviceconfig

import "testing"

func TestMethodString(t *testing.T) {
	for m := MethodNone; m <= MethodCompiledDefaults; m++ {
		parsed, err := ParseMethod(m.String())
		if err != nil {
			t.Errorf("ParseMethod(%q) error = %v", m.String(), err)
		}
		if parsed != m {
			t.Errorf("ParseMethod(%q) = %v, want %v", m.String(), parsed, m)
		}
	}

	if _, err := ParseMethod("carrier-pigeon"); err == nil {
		t.Error("ParseMethod(unknown) should fail")
	}
	if Method(42).String() != "Method(42)" {
		t.Errorf("Method(42).String() = %q", Method(42).String())
	}
}

func TestMethodInsecure(t *testing.T) {
	for m := MethodNone; m <= MethodCompiledDefaults; m++ {
		if got := m.Insecure(); got != (m == MethodCompiledDefaults) {
			t.Errorf("%v.Insecure() = %v", m, got)
		}
	}
}

func TestRecordEndpoint(t *testing.T) {
	rec := ConfigRecord{BackendHost: "h", BackendPort: 80}
	if rec.Endpoint() != "h:80" || rec.Scheme() != "ws" {
		t.Errorf("Endpoint()/Scheme() = %q/%q", rec.Endpoint(), rec.Scheme())
	}
}
