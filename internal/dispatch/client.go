package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	checkInPath     = "API/Print/CheckIn"
	completeJobPath = "API/Print/CompleteJob"

	maxResponseBytes = 16 << 20
)

// HTTPServer talks to the order server over HTTP.
type HTTPServer struct {
	base      *url.URL
	client    *http.Client
	userAgent string
}

// HTTPOption configures an HTTPServer.
type HTTPOption func(*HTTPServer)

// WithHTTPClient replaces the default client (used by tests).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPServer) { s.client = c }
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) HTTPOption {
	return func(s *HTTPServer) { s.userAgent = ua }
}

// NewHTTPServer targets siteURL. Relative API paths resolve beneath it even
// when the URL lacks a trailing slash.
func NewHTTPServer(siteURL string, timeout time.Duration, opts ...HTTPOption) (*HTTPServer, error) {
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parse site url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("site url %q is not absolute", siteURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	s := &HTTPServer{
		base:      base,
		client:    &http.Client{Timeout: timeout},
		userAgent: "printbridge",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckIn reports status and fetches pending jobs. Any response that arrives
// is returned without error so the caller can log its status; only transport
// failures and a malformed 200 body are errors.
func (s *HTTPServer) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResponse, error) {
	resp, err := s.put(ctx, checkInPath, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &CheckInResponse{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return out, nil
	}

	jobs, err := decodeJobs(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return out, err
	}
	out.Jobs = jobs
	return out, nil
}

// CompleteJob acknowledges a printed job. The response body is ignored; a non-2xx status is an error.
func (s *HTTPServer) CompleteJob(ctx context.Context, req CompleteJobRequest) error {
	resp, err := s.put(ctx, completeJobPath, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("complete job %s: server answered %d %s", req.JobID, resp.StatusCode, reasonPhrase(resp))
	}
	return nil
}

func (s *HTTPServer) put(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", path, err)
	}

	target := s.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerUnreachable, err)
	}
	return resp, nil
}

func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

// decodeJobs reads a JSON object of job id to hex string, keeping the
// server's key order. An empty body or null means no jobs. A value that is
// not a string is kept on its job as Malformed so only that job is skipped.
func decodeJobs(r io.Reader) ([]PendingJob, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object, got %v", ErrProtocol, tok)
	}

	var jobs []PendingJob
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
		}
		id, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: job %q: %w", ErrProtocol, id, err)
		}
		pj := PendingJob{ID: id}
		if err := json.Unmarshal(raw, &pj.Hex); err != nil || bytes.Equal(raw, []byte("null")) {
			pj.Malformed = raw
		}
		jobs = append(jobs, pj)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}
	return jobs, nil
}
