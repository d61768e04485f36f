package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vote-ledger-backend/models"
)

// UploadError means the content store rejected or never received a
// document. The ledger never points at anything when this is returned.
type UploadError struct {
	Status int
	Msg    string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("metadata upload failed: %v", e.Err)
	}
	return fmt.Sprintf("metadata upload failed: status %d: %s", e.Status, e.Msg)
}

func (e *UploadError) Unwrap() error { return e.Err }

// MetadataFetchError means an existing document could not be read back.
// Callers decide whether that is fatal: the cast path treats it as
// "not voted", aggregations skip the voter.
type MetadataFetchError struct {
	URI string
	Err error
}

func (e *MetadataFetchError) Error() string {
	return fmt.Sprintf("failed to fetch metadata %s: %v", e.URI, e.Err)
}

func (e *MetadataFetchError) Unwrap() error { return e.Err }

// Client talks to the content-addressed store: JSON in, content URI
// out, and plain GETs to read documents back through the gateway.
type Client struct {
	apiURL     string
	secretKey  string
	gatewayURL string
	httpClient *http.Client
}

func NewClient(apiURL, secretKey, gatewayURL string) *Client {
	return &Client{
		apiURL:     apiURL,
		secretKey:  secretKey,
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type uploadResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Upload posts a JSON document to the store and returns its resolved
// URL. The old document for a ledger is never deleted; every vote
// produces a fresh object.
func (c *Client) Upload(ctx context.Context, doc interface{}) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", &UploadError{Err: fmt.Errorf("failed to encode document: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", &UploadError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secretKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UploadError{Status: resp.StatusCode, Err: err}
	}

	var result uploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &UploadError{Status: resp.StatusCode, Err: fmt.Errorf("invalid store response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK || result.URL == "" {
		return "", &UploadError{Status: resp.StatusCode, Msg: result.Error}
	}

	return c.ResolveScheme(result.URL), nil
}

// ResolveScheme rewrites an ipfs:// content identifier to a fetchable
// gateway URL. Anything else passes through untouched.
func (c *Client) ResolveScheme(uri string) string {
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return c.gatewayURL + cid
	}
	return uri
}

// FetchMetadata reads a ledger's vote document back from the store.
func (c *Client) FetchMetadata(ctx context.Context, uri string) (*models.VoteMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ResolveScheme(uri), nil)
	if err != nil {
		return nil, &MetadataFetchError{URI: uri, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &MetadataFetchError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &MetadataFetchError{URI: uri, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var metadata models.VoteMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, &MetadataFetchError{URI: uri, Err: err}
	}

	return &metadata, nil
}
