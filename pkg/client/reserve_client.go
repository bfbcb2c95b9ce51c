package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"go.uber.org/zap"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     4,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      2 * time.Second,
	BackoffMultiple: 2.0,
}

// ClientConfig holds the configuration for the reserve client
type ClientConfig struct {
	ServerURL string
	LeafTag   string
	BranchTag string
	Timeout   time.Duration
	Logger    *zap.Logger

	// HTTPClient is optional; a client with Timeout is created when nil
	HTTPClient *http.Client

	// Retry defaults to DefaultRetryConfig when nil
	Retry *RetryConfig
}

// ReserveClient queries a reserve server and verifies its proofs locally, so an
// auditor does not have to trust the server's own /verify answer.
type ReserveClient struct {
	serverURL   string
	tree        *merkle.MerkleTree
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *zap.Logger
}

// AuditResult is the outcome of checking one user's inclusion
type AuditResult struct {
	Record     types.UserRecord
	RootHash   string
	Version    string
	PathLength int
	Valid      bool
}

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reserve server returned status %d: %s", e.StatusCode, e.Message)
}

// NewReserveClient creates a new reserve client
func NewReserveClient(config *ClientConfig) (*ReserveClient, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	tree, err := merkle.NewMerkleTree(config.LeafTag, config.BranchTag)
	if err != nil {
		return nil, fmt.Errorf("failed to create merkle tree: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	retryConfig := DefaultRetryConfig
	if config.Retry != nil {
		retryConfig = *config.Retry
	}
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}

	return &ReserveClient{
		serverURL:   strings.TrimRight(config.ServerURL, "/"),
		tree:        tree,
		httpClient:  httpClient,
		retryConfig: retryConfig,
		logger:      config.Logger,
	}, nil
}

// GetRoot fetches the currently published root
func (c *ReserveClient) GetRoot(ctx context.Context) (*types.RootResponse, error) {
	var resp types.RootResponse
	if err := c.do(ctx, http.MethodGet, "/root", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetProof fetches the inclusion proof of one user
func (c *ReserveClient) GetProof(ctx context.Context, userID int64) (*types.ProofResponse, error) {
	query := url.Values{"userId": []string{types.FormatUserID(userID)}}

	var resp types.ProofResponse
	if err := c.do(ctx, http.MethodGet, "/proof?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyRemote asks the server to verify a proof
func (c *ReserveClient) VerifyRemote(ctx context.Context, req *types.VerifyRequest) (bool, error) {
	var resp types.VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/verify", req, &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// VerifyLocally replays a wire proof with the client's tags
func (c *ReserveClient) VerifyLocally(record types.UserRecord, path []types.ProofPathEntry, rootHash string) (bool, error) {
	decoded, err := types.DecodeProofPath(path)
	if err != nil {
		return false, fmt.Errorf("invalid proof path: %w", err)
	}
	return c.tree.Verify(record.CanonicalPayload(), decoded, rootHash), nil
}

// FetchAndVerify fetches the published root and the user's proof and checks the
// proof locally against the root. A proof that was issued against a different
// root than the published one is reported as invalid.
func (c *ReserveClient) FetchAndVerify(ctx context.Context, userID int64) (*AuditResult, error) {
	root, err := c.GetRoot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root: %w", err)
	}

	proof, err := c.GetProof(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proof: %w", err)
	}

	result := &AuditResult{
		Record:     proof.Record,
		RootHash:   root.RootHash,
		Version:    root.Version,
		PathLength: len(proof.Path),
	}

	if proof.Record.UserID != userID {
		c.logger.Sugar().Warnw("Server returned a proof for a different user", "requested", userID, "returned", proof.Record.UserID)
		return result, nil
	}

	if proof.RootHash != root.RootHash {
		c.logger.Sugar().Warnw("Proof root differs from published root",
			"user_id", userID,
			"published_root", root.RootHash,
			"proof_root", proof.RootHash)
		return result, nil
	}

	valid, err := c.VerifyLocally(proof.Record, proof.Path, root.RootHash)
	if err != nil {
		return nil, err
	}
	result.Valid = valid

	c.logger.Sugar().Infow("Audited user inclusion",
		"user_id", userID,
		"root", root.RootHash,
		"version", root.Version,
		"valid", valid)

	return result, nil
}

// retryable reports whether a response status is worth another attempt
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// do sends one JSON request with retries on transport failures and throttling
func (c *ReserveClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	backoff := c.retryConfig.InitialBackoff
	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.logger.Sugar().Debugw("Retrying request", "path", path, "attempt", attempt+1, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}

		retry, err := c.attempt(ctx, method, path, data, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}

	return fmt.Errorf("request %s %s failed after %d attempts: %w", method, path, c.retryConfig.MaxAttempts, lastErr)
}

func (c *ReserveClient) attempt(ctx context.Context, method, path string, data []byte, out interface{}) (bool, error) {
	var reader io.Reader
	if data != nil {
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		message := strings.TrimSpace(string(raw))

		var errResp types.ErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		}
		return retryable(resp.StatusCode), &StatusError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return false, nil
}
