package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// EndpointFile is written next to the task data while a server is running.
const EndpointFile = "serve.json"

const discoverTimeout = 500 * time.Millisecond

// Endpoint records where a running server can be reached
type Endpoint struct {
	URL string `json:"url"`
	PID int    `json:"pid"`
}

// EndpointURL turns a listen address into a URL a local client can dial.
// Wildcard hosts are replaced with the loopback address.
func EndpointURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// WriteEndpoint advertises url in dir
func WriteEndpoint(dir, url string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	data, err := json.Marshal(Endpoint{URL: url, PID: os.Getpid()})
	if err != nil {
		return err
	}

	path := filepath.Join(dir, EndpointFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write endpoint: %w", err)
	}
	return os.Rename(tmp, path)
}

// RemoveEndpoint withdraws the advertisement, leaving a newer server's alone
func RemoveEndpoint(dir, url string) error {
	ep, err := readEndpoint(dir)
	if err != nil || ep.URL != url {
		return nil
	}
	if err := os.Remove(filepath.Join(dir, EndpointFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Discover returns a client for the server advertised in dir. It returns
// nil when nothing is advertised or the advertised server does not answer.
func Discover(ctx context.Context, dir string) *Client {
	if dir == "" {
		return nil
	}
	ep, err := readEndpoint(dir)
	if err != nil || ep.URL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	c := New(ep.URL)
	if err := c.Ping(ctx); err != nil {
		return nil
	}
	return c
}

func readEndpoint(dir string) (Endpoint, error) {
	var ep Endpoint
	data, err := os.ReadFile(filepath.Join(dir, EndpointFile))
	if err != nil {
		return ep, err
	}
	err = json.Unmarshal(data, &ep)
	return ep, err
}
