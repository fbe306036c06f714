// File path: internal/backend/bulk/client.go
package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nicodishanthj/copybook_engine/internal/backend"
	"github.com/nicodishanthj/copybook_engine/internal/common"
	"github.com/nicodishanthj/copybook_engine/internal/common/telemetry"
	"github.com/nicodishanthj/copybook_engine/internal/filestore"
)

// Name identifies the bulk pipeline in ParseResult.
const Name = "bulk"

// Client adapts the external bulk decoding service to the Backend contract.
// The service consumes a canonicalized copybook and addressable data files
// through a narrow submit/poll/fetch job API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cfg        Config
	staging    filestore.Store
}

// New constructs the bulk client against the provided staging store. The
// service is probed lazily per parse, not at construction.
func New(cfg Config, staging filestore.Store) *Client {
	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	baseURL := fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port)
	common.Logger().Info("bulk: client configured", "host", cfg.Host, "port", cfg.Port)
	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		cfg:        cfg,
		staging:    staging,
	}
}

// NewFromEnv constructs the client from environment configuration.
func NewFromEnv(staging filestore.Store) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(cfg, staging), nil
}

func (c *Client) Name() string { return Name }

// Capabilities: the bulk service covers the fixed-layout feature set but
// not bounded-variable OCCURS; the dispatcher routes those copybooks to the
// in-process pipeline.
func (c *Client) Capabilities() backend.Capability {
	return backend.Capability{
		Occurs:            true,
		Redefines:         true,
		PackedDecimal:     true,
		VariableOccurs:    false,
		LargeFileParallel: true,
	}
}

type submitRequest struct {
	CopybookRef string        `json:"copybook_ref"`
	DataRef     string        `json:"data_ref"`
	Options     submitOptions `json:"options"`
}

type submitOptions struct {
	CodePage           string `json:"code_page,omitempty"`
	TrimTrailingSpaces bool   `json:"trim_trailing_spaces,omitempty"`
	IncludeFiller      bool   `json:"include_filler,omitempty"`
	RecordLength       int    `json:"record_length,omitempty"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

type jobStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Parse canonicalizes and stages the copybook, submits a job, polls it to
// completion within the caller deadline, and fetches the result. Staged
// objects are deleted on every exit path.
func (c *Client) Parse(ctx context.Context, copybookRef, dataRef string, opts backend.Options) (*backend.ParseResult, error) {
	ctx, done := telemetry.StartSpan(ctx, "bulk.parse")
	defer done()
	telemetry.RecordBackendParse(Name)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.health(ctx); err != nil {
		return nil, &backend.Error{Backend: Name, Kind: backend.KindUnavailable, Cause: err}
	}

	raw, err := c.staging.Get(ctx, copybookRef)
	if err != nil {
		return nil, fmt.Errorf("fetch copybook %s: %w", copybookRef, err)
	}
	canonical, err := Canonicalize(raw)
	if err != nil {
		return nil, &backend.Error{Backend: Name, Kind: backend.KindPreprocessing, Cause: err}
	}
	canonicalRef, err := c.staging.Put(ctx, []byte(canonical))
	if err != nil {
		return nil, &backend.Error{Backend: Name, Kind: backend.KindPreprocessing, Cause: err}
	}
	defer func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		if derr := c.staging.Delete(cleanupCtx, canonicalRef); derr != nil {
			common.Logger().Warn("bulk: staged copybook cleanup failed", "ref", canonicalRef, "error", derr)
		}
	}()

	jobID, err := c.submit(ctx, submitRequest{
		CopybookRef: canonicalRef,
		DataRef:     dataRef,
		Options: submitOptions{
			CodePage:           opts.CodePage,
			TrimTrailingSpaces: opts.TrimTrailingSpaces,
			IncludeFiller:      opts.IncludeFiller,
			RecordLength:       opts.RecordLength,
		},
	})
	if err != nil {
		return nil, c.classify(err)
	}
	if err := c.await(ctx, jobID); err != nil {
		return nil, c.classify(err)
	}
	result, err := c.fetchResult(ctx, jobID)
	if err != nil {
		return nil, c.classify(err)
	}
	result.BackendUsed = Name
	common.Logger().Info("bulk: parse complete", "job", jobID, "records", len(result.Records))
	return result, nil
}

// classify maps transport failures to the retryable backend error kinds: a
// deadline becomes a timeout, anything else transport-level becomes
// unavailable.
func (c *Client) classify(err error) error {
	var be *backend.Error
	if errors.As(err, &be) {
		return err
	}
	kind := backend.KindUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = backend.KindTimeout
	}
	return &backend.Error{Backend: Name, Kind: kind, Cause: err}
}

func (c *Client) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %s", resp.Status)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, payload submitRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("submit returned %s", resp.Status)
	}
	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if parsed.JobID == "" {
		return "", errors.New("submit response carries no job id")
	}
	return parsed.JobID, nil
}

// await polls the job until it completes or ctx expires.
func (c *Client) await(ctx context.Context, jobID string) error {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		status, err := c.poll(ctx, jobID)
		if err != nil {
			return err
		}
		switch status.Status {
		case "done":
			return nil
		case "failed":
			return fmt.Errorf("bulk job %s failed: %s", jobID, status.Error)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) poll(ctx context.Context, jobID string) (jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return jobStatus{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return jobStatus{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return jobStatus{}, fmt.Errorf("poll returned %s", resp.Status)
	}
	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return jobStatus{}, fmt.Errorf("decode poll response: %w", err)
	}
	return status, nil
}

func (c *Client) fetchResult(ctx context.Context, jobID string) (*backend.ParseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID+"/result", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch result returned %s", resp.Status)
	}
	var result backend.ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode parse result: %w", err)
	}
	return &result, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.httpClient.Do(req)
}
