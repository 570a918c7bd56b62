// Package elastic implements docstore.Store over the Elasticsearch HTTP API.
package elastic

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/dray-io/fimcondense/internal/docstore"
)

const (
	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 64 << 20

	userAgent = "fimcondense"
)

// Config configures the HTTP store.
type Config struct {
	// Endpoint is the base URL, e.g. "https://10.0.0.7:9200".
	Endpoint string

	// Username and Password are sent as HTTP basic auth when Username is set.
	Username string
	Password string

	// CertPath points at a PEM bundle used as the only trusted CA set.
	// Empty uses the system roots.
	CertPath string

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool

	// RequestTimeout bounds every individual HTTP call. Zero means 30s.
	RequestTimeout time.Duration

	// GzipRequests compresses request bodies.
	GzipRequests bool

	// Conflicts is passed to delete-by-query ("proceed" or "abort").
	Conflicts string

	// HTTPClient overrides the constructed client. TLS options are ignored
	// when set.
	HTTPClient *http.Client
}

// Endpoint joins scheme, host and port into a base URL.
func Endpoint(scheme, host string, port int) string {
	return (&url.URL{Scheme: scheme, Host: net.JoinHostPort(host, strconv.Itoa(port))}).String()
}

// Store implements docstore.Store over HTTP.
type Store struct {
	base   *url.URL
	client *http.Client
	cfg    Config
	mu     sync.RWMutex
	closed bool
}

// New creates a Store. It does not contact the server; use Ping for that.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("elastic: endpoint is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("elastic: parse endpoint: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("elastic: unsupported scheme %q", base.Scheme)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Conflicts == "" {
		cfg.Conflicts = "proceed"
	}

	client := cfg.HTTPClient
	if client == nil {
		tlsCfg, err := tlsConfig(cfg)
		if err != nil {
			return nil, err
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsCfg
		transport.MaxIdleConnsPerHost = 32
		client = &http.Client{Transport: transport}
	}

	return &Store{
		base:   base,
		client: client,
		cfg:    cfg,
	}, nil
}

func tlsConfig(cfg Config) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}
	if cfg.CertPath == "" {
		return tc, nil
	}
	pem, err := os.ReadFile(cfg.CertPath)
	if err != nil {
		return nil, fmt.Errorf("elastic: read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("elastic: no certificates found in %s", cfg.CertPath)
	}
	tc.RootCAs = pool
	return tc, nil
}

func (s *Store) checkClosed(op, index string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return &docstore.StoreError{Op: op, Index: index, Err: docstore.ErrStoreClosed}
	}
	return nil
}

// Close marks the store closed and drops idle connections.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// do sends one JSON request and decodes the JSON response into out.
func (s *Store) do(ctx context.Context, op, index, method, path string, query url.Values, body, out any) error {
	if err := s.checkClosed(op, index); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	target := s.base.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	var encoding string
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &docstore.StoreError{Op: op, Index: index, Err: fmt.Errorf("%w: encode body: %v", docstore.ErrQueryRejected, err)}
		}
		if s.cfg.GzipRequests {
			payload, err = gzipBytes(payload)
			if err != nil {
				return &docstore.StoreError{Op: op, Index: index, Err: fmt.Errorf("%w: compress body: %v", docstore.ErrTransport, err)}
			}
			encoding = "gzip"
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &docstore.StoreError{Op: op, Index: index, Err: fmt.Errorf("%w: %w", docstore.ErrTransport, err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &docstore.StoreError{Op: op, Index: index, Err: fmt.Errorf("%w: %w", docstore.ErrTransport, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &docstore.StoreError{Op: op, Index: index, Status: resp.StatusCode, Err: fmt.Errorf("%w: read body: %w", docstore.ErrTransport, err)}
	}

	if resp.StatusCode >= 300 {
		return s.wrapStatus(op, index, resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &docstore.StoreError{Op: op, Index: index, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", docstore.ErrResponseParse, err)}
	}
	return nil
}

// wrapStatus maps an unsuccessful HTTP status to a docstore error kind.
func (s *Store) wrapStatus(op, index string, status int, body []byte) error {
	reason := http.StatusText(status)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error.Reason != "" {
		reason = er.Error.Type + ": " + er.Error.Reason
	}

	kind := docstore.ErrQueryRejected
	switch {
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		kind = docstore.ErrTransport
	}
	return &docstore.StoreError{Op: op, Index: index, Status: status, Err: fmt.Errorf("%w: %s", kind, reason)}
}

func gzipBytes(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
