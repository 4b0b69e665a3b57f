package tor

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Tor connectivity errors.
var (
	// ErrInvalidProxyAddress is returned when the proxy address format
	// is invalid. Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrNotRunning is returned when a client is requested from an
	// embedded daemon that has not been started.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")
)

// Client routes HTTP requests through a Tor SOCKS5 proxy.
//
// Design decision: We only use SOCKS5 connectivity here; daemon
// lifecycle lives in EmbeddedTor. Users running their own Tor point
// sitesnap at its SOCKS port and nothing else is needed.
type Client struct {
	// proxyAddress is the SOCKS5 proxy address in "host:port" format.
	proxyAddress string

	// dialer is the SOCKS5 dialer, cached so each connection reuses it.
	dialer proxy.Dialer

	// timeout is the default timeout for HTTP clients built from this client.
	timeout time.Duration
}

// NewClient creates a Tor client for the given SOCKS5 proxy address.
// The address format is validated but no connection is attempted, so a
// client can be constructed before the daemon finishes bootstrapping.
func NewClient(proxyAddress string, timeout time.Duration) (*Client, error) {
	if !isValidProxyAddress(proxyAddress) {
		return nil, ErrInvalidProxyAddress
	}

	// nil auth: Tor's SOCKS port does not require authentication
	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, err
	}

	return &Client{
		proxyAddress: proxyAddress,
		dialer:       dialer,
		timeout:      timeout,
	}, nil
}

// isValidProxyAddress checks for "host:port" with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	port, err := strconv.Atoi(portStr)
	return err == nil && port >= 1 && port <= 65535
}

// NewHTTPClient creates an HTTP client that routes all requests through
// the Tor SOCKS5 proxy.
//
// TLS verification is disabled because hidden services use self-signed
// certificates; the onion address itself authenticates the service.
// Compression stays disabled to avoid size side channels on Tor
// circuits, and the connection pool is kept small because each pooled
// connection holds a circuit.
func (c *Client) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext: func(_ context.Context, network, addr string) (net.Conn, error) {
			return c.dialer.Dial(network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Required for .onion services
		},
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.timeout,
	}
}

// IsOnionURL reports whether the URL targets a Tor hidden service.
// Snapshotting such a target without a Tor transport cannot succeed,
// so the CLI uses this to fail fast with a helpful message.
func IsOnionURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".onion")
}
