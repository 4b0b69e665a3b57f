package tor

import (
	"errors"
	"testing"
	"time"
)

// TestNewClient tests proxy address validation.
func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{name: "valid address", address: "127.0.0.1:9050"},
		{name: "valid hostname", address: "localhost:9150"},
		{name: "missing port", address: "127.0.0.1", wantErr: true},
		{name: "empty host", address: ":9050", wantErr: true},
		{name: "port too large", address: "127.0.0.1:70000", wantErr: true},
		{name: "port zero", address: "127.0.0.1:0", wantErr: true},
		{name: "non-numeric port", address: "127.0.0.1:abc", wantErr: true},
		{name: "empty", address: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewClient(tt.address, time.Minute)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidProxyAddress) {
					t.Errorf("got %v, want ErrInvalidProxyAddress", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestNewHTTPClient tests the derived HTTP client configuration.
func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	client, err := NewClient("127.0.0.1:9050", 42*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	httpClient := client.NewHTTPClient()
	if httpClient.Timeout != 42*time.Second {
		t.Errorf("Timeout = %v, want 42s", httpClient.Timeout)
	}
	if httpClient.Transport == nil {
		t.Error("Transport should be set")
	}
}

// TestIsOnionURL tests hidden-service URL detection.
func TestIsOnionURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{name: "onion host", url: "http://exampleexampleexampleexampleexampleexampleexampleexa.onion/", want: true},
		{name: "onion with port", url: "http://short.onion:8080/page", want: true},
		{name: "upper case", url: "http://SHORT.ONION/", want: true},
		{name: "clearnet", url: "https://example.com/", want: false},
		{name: "onion in path only", url: "https://example.com/foo.onion", want: false},
		{name: "unparseable", url: "http://%zz", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsOnionURL(tt.url); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

// TestEmbeddedTorLifecycle tests state handling without launching a daemon.
func TestEmbeddedTorLifecycle(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor(WithStartupTimeout(time.Minute))

	if e.IsRunning() {
		t.Error("new instance should not be running")
	}
	if e.SocksAddr() != "" {
		t.Error("SocksAddr should be empty before Start")
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop on unstarted instance should be nil, got %v", err)
	}
	if _, err := e.NewClient(time.Minute); !errors.Is(err, ErrNotRunning) {
		t.Errorf("got %v, want ErrNotRunning", err)
	}
}
