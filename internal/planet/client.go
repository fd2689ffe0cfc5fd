// Package planet is the remote planet server client: HTTPS GET with
// retry across a configured server list, transparent gzip decoding, and
// state.txt/state.yaml sidecar parsing.
package planet

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hotosm/underpass/internal/sequence"
)

// Client downloads replication files and state sidecars, falling back
// through an ordered list of planet servers on connect/timeout/5xx
// failures.
type Client struct {
	servers []string
	http    *http.Client
	log     *zap.Logger

	maxRetries int
	retryDelay time.Duration
}

// NewClient builds a client with the given server list (tried in
// order), a connect timeout, and a total per-request timeout.
func NewClient(servers []string, connectTimeout, totalTimeout time.Duration, log *zap.Logger) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	if totalTimeout <= 0 {
		totalTimeout = 300 * time.Second
	}
	return &Client{
		servers: servers,
		http: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		log:        log,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
	}
}

// Download fetches a path relative to each configured server in turn,
// decompressing gzip content transparently, and returns the decoded
// bytes of the first server that serves it successfully.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for _, server := range c.servers {
		url := strings.TrimRight(server, "/") + "/" + strings.TrimLeft(path, "/")
		body, err := c.fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		if _, ok := err.(*NotFoundError); ok {
			return nil, err // 4xx is permanent for this file, don't fall through
		}
		var transient *TransientNetworkError
		if !errors.As(err, &transient) {
			return nil, err // any other 4xx or unexpected status is permanent too
		}
		c.log.Debug("planet server failed, trying next", zap.String("url", url), zap.Error(err))
		lastErr = err
	}
	return nil, lastErr
}

// ProbeLatest fetches and parses the current state sidecar for a stream,
// returning its path, sequence, and timestamp.
func (c *Client) ProbeLatest(ctx context.Context, frequency string, stream sequence.Stream) (string, int64, time.Time, error) {
	statePath := frequency + "/state.yaml"
	if stream == sequence.StreamOsmChange {
		statePath = frequency + "/state.txt"
	}

	body, err := c.Download(ctx, statePath)
	if err != nil {
		return "", 0, time.Time{}, err
	}

	var state *State
	if stream == sequence.StreamChangeset {
		state, err = ParseStateYAML(bytes.NewReader(body))
	} else {
		state, err = ParseStateTxt(bytes.NewReader(body))
	}
	if err != nil {
		return "", 0, time.Time{}, &MalformedStateError{URL: statePath, Cause: err}
	}

	return sequence.ToPath(state.Sequence), state.Sequence, state.Timestamp, nil
}

// FetchSequenceState downloads and parses the state sidecar for a
// specific sequence number within a stream.
func (c *Client) FetchSequenceState(ctx context.Context, frequency string, stream sequence.Stream, seq int64) (*State, error) {
	path := frequency + "/" + sequence.ToPath(seq) + sequenceStateSuffix(stream)
	body, err := c.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	if stream == sequence.StreamChangeset {
		state, err := ParseStateYAML(bytes.NewReader(body))
		if err != nil {
			return nil, &MalformedStateError{URL: path, Cause: err}
		}
		return state, nil
	}
	state, err := ParseStateTxt(bytes.NewReader(body))
	if err != nil {
		return nil, &MalformedStateError{URL: path, Cause: err}
	}
	return state, nil
}

// FetchSequenceData downloads the data file for a specific sequence
// number within a stream, decompressing it.
func (c *Client) FetchSequenceData(ctx context.Context, frequency string, stream sequence.Stream, seq int64) ([]byte, error) {
	path := frequency + "/" + sequence.ToPath(seq) + sequence.DataSuffix(stream)
	return c.Download(ctx, path)
}

func sequenceStateSuffix(stream sequence.Stream) string {
	if stream == sequence.StreamChangeset {
		return ".state.yaml"
	}
	return ".state.txt"
}

// fetch performs a single HTTP GET with retry, decompressing gzip
// content if the response carries it (either by Content-Encoding or by
// the path ending in .gz, since planet servers serve pre-gzipped files
// without always setting the header). A body that net/http has already
// decoded from Content-Encoding: gzip is not decoded a second time.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "underpass/1.0")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = &TransientNetworkError{URL: url, Cause: err}
			continue
		}

		body, readErr := readResponseBody(resp, url)
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, &NotFoundError{URL: url}
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = &TransientNetworkError{URL: url, Cause: fmt.Errorf("server error: %d", resp.StatusCode)}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
		}
		resp.Body.Close()
		if readErr != nil {
			lastErr = &TransientNetworkError{URL: url, Cause: readErr}
			continue
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries exceeded fetching %s: %w", url, lastErr)
}

func readResponseBody(resp *http.Response, url string) ([]byte, error) {
	var reader io.Reader = resp.Body
	if !resp.Uncompressed && (resp.Header.Get("Content-Encoding") == "gzip" || strings.HasSuffix(url, ".gz")) {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}
