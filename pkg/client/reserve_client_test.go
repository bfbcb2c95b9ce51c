package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/logger"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence/memory"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/reserve"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/server"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	leafTag   = "ProofOfReserve_Leaf"
	branchTag = "ProofOfReserve_Branch"

	eightUsersRoot = "b1231de33da17c23cebd80c104b88198e0914b0463d0e14db163605b904a7ba3"
)

func startReserveServer(t *testing.T, users int) (*httptest.Server, *reserve.Service) {
	t.Helper()

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	require.NoError(t, err)

	mt, err := merkle.NewMerkleTree(leafTag, branchTag)
	require.NoError(t, err)

	p := memory.NewMemoryPersistence()
	t.Cleanup(func() { _ = p.Close() })
	for i := 1; i <= users; i++ {
		require.NoError(t, p.SaveRecord(&types.UserRecord{UserID: int64(i), Balance: int64(i) * 1111}))
	}

	svc := reserve.NewService(mt, p, l)
	_, err = svc.Rebuild(context.Background())
	require.NoError(t, err)

	srv := server.NewServer(server.Config{RateLimit: 1000, RateBurst: 1000}, svc, l)
	ts := httptest.NewServer(srv.GetHandler())
	t.Cleanup(ts.Close)
	return ts, svc
}

func newTestClient(t *testing.T, serverURL string) *ReserveClient {
	t.Helper()
	c, err := NewReserveClient(&ClientConfig{
		ServerURL: serverURL,
		LeafTag:   leafTag,
		BranchTag: branchTag,
		Timeout:   5 * time.Second,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestNewReserveClient_Validation(t *testing.T) {
	_, err := NewReserveClient(nil)
	require.Error(t, err)

	_, err = NewReserveClient(&ClientConfig{LeafTag: leafTag, BranchTag: branchTag, Logger: zap.NewNop()})
	require.Error(t, err)

	_, err = NewReserveClient(&ClientConfig{ServerURL: "http://localhost", LeafTag: leafTag, BranchTag: branchTag})
	require.Error(t, err)

	_, err = NewReserveClient(&ClientConfig{ServerURL: "http://localhost", BranchTag: branchTag, Logger: zap.NewNop()})
	require.True(t, errors.Is(err, merkle.ErrInvalidTag))
}

func TestReserveClient_GetRootAndProof(t *testing.T) {
	ts, _ := startReserveServer(t, 8)
	c := newTestClient(t, ts.URL+"/")

	root, err := c.GetRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, eightUsersRoot, root.RootHash)
	assert.Equal(t, 8, root.LeafCount)

	proof, err := c.GetProof(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7777), proof.Record.Balance)
	assert.Equal(t, root.Version, proof.Version)

	valid, err := c.VerifyLocally(proof.Record, proof.Path, root.RootHash)
	require.NoError(t, err)
	assert.True(t, valid)

	remote, err := c.VerifyRemote(context.Background(), &types.VerifyRequest{
		Record:   proof.Record,
		RootHash: root.RootHash,
		Path:     proof.Path,
	})
	require.NoError(t, err)
	assert.True(t, remote)
}

func TestReserveClient_GetProofNotFound(t *testing.T) {
	ts, _ := startReserveServer(t, 3)
	c := newTestClient(t, ts.URL)

	_, err := c.GetProof(context.Background(), 42)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Contains(t, statusErr.Message, "not found")
}

func TestReserveClient_FetchAndVerify(t *testing.T) {
	ts, _ := startReserveServer(t, 8)
	c := newTestClient(t, ts.URL)

	for i := int64(1); i <= 8; i++ {
		result, err := c.FetchAndVerify(context.Background(), i)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, i, result.Record.UserID)
		assert.Equal(t, eightUsersRoot, result.RootHash)
		assert.Equal(t, 3, result.PathLength)
	}
}

func TestReserveClient_FetchAndVerifyWrongTags(t *testing.T) {
	ts, _ := startReserveServer(t, 8)

	c, err := NewReserveClient(&ClientConfig{
		ServerURL: ts.URL,
		LeafTag:   "Bitcoin_Transaction",
		BranchTag: "Bitcoin_Transaction",
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)

	result, err := c.FetchAndVerify(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}

func TestReserveClient_FetchAndVerifyDetectsTampering(t *testing.T) {
	// A server that inflates the balance it reports
	ts, _ := startReserveServer(t, 8)
	c := newTestClient(t, ts.URL)

	honest, err := c.GetProof(context.Background(), 4)
	require.NoError(t, err)

	tampered := http.NewServeMux()
	tampered.HandleFunc("/proof", func(w http.ResponseWriter, r *http.Request) {
		resp := *honest
		resp.Record.Balance = 1_000_000
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	})
	tampered.HandleFunc("/root", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(types.RootResponse{RootHash: honest.RootHash, Version: honest.Version, LeafCount: 8}))
	})
	liar := httptest.NewServer(tampered)
	defer liar.Close()

	result, err := newTestClient(t, liar.URL).FetchAndVerify(context.Background(), 4)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, int64(1_000_000), result.Record.Balance)
}

func TestReserveClient_RetriesThrottledRequests(t *testing.T) {
	ts, _ := startReserveServer(t, 8)
	upstream := ts.URL

	var calls atomic.Int32
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		resp, err := http.Get(upstream + r.URL.RequestURI())
		if !assert.NoError(t, err) {
			return
		}
		defer func() { _ = resp.Body.Close() }()
		w.WriteHeader(resp.StatusCode)
		_, _ = io.Copy(w, resp.Body)
	}))
	defer flaky.Close()

	c, err := NewReserveClient(&ClientConfig{
		ServerURL: flaky.URL,
		LeafTag:   leafTag,
		BranchTag: branchTag,
		Logger:    zap.NewNop(),
		Retry: &RetryConfig{
			MaxAttempts:     3,
			InitialBackoff:  time.Millisecond,
			MaxBackoff:      5 * time.Millisecond,
			BackoffMultiple: 2,
		},
	})
	require.NoError(t, err)

	root, err := c.GetRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, eightUsersRoot, root.RootHash)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReserveClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid user identifier"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	_, err := c.GetProof(context.Background(), 1)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, "invalid user identifier", statusErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReserveClient_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c, err := NewReserveClient(&ClientConfig{
		ServerURL: ts.URL,
		LeafTag:   leafTag,
		BranchTag: branchTag,
		Logger:    zap.NewNop(),
		Retry:     &RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiple: 1},
	})
	require.NoError(t, err)

	_, err = c.GetRoot(context.Background())
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}
