package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/reserve"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/store"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server exposes the proof of reserve over HTTP.

Query endpoints:
  GET /root
    - Returns the published root hash, its version and leaf count
  GET /root/history
    - Returns every root published so far, oldest first
  GET /proof?userId=<id>
    - Returns the user's record and the sibling path to the published root
  POST /verify
    - Request: { record, rootHash, path }
    - Replays the path with the server's tags and reports { valid }

Operator endpoints:
  POST /admin/records
    - Upserts user records; the root only changes on the next rebuild
  POST /admin/rebuild
    - Rebuilds the tree now and publishes the new root

  GET /health

Every endpoint goes through a token bucket rate limiter.
*/

// IReserveService is the reserve logic the server answers from
type IReserveService interface {
	Rebuild(ctx context.Context) (*store.Snapshot, error)
	CurrentRoot() (*store.Snapshot, error)
	ProofFor(ctx context.Context, rawID string) (*reserve.Proof, error)
	Verify(record *types.UserRecord, path []merkle.ProofPathEntry, expectedRootHex string) bool
	UpsertRecords(ctx context.Context, records []*types.UserRecord) error
	RootHistory() ([]*types.RootSnapshotMeta, error)
	HealthCheck() error
}

// Config holds the HTTP settings of the server
type Config struct {
	Port      int
	RateLimit float64 // requests per second
	RateBurst int
}

// Server handles HTTP requests for the reserve service
type Server struct {
	service    IReserveService
	httpServer *http.Server
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewServer creates a new server instance
func NewServer(cfg Config, service IReserveService, logger *zap.Logger) *Server {
	s := &Server{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger,
	}

	mux := http.NewServeMux()

	// Query endpoints
	mux.HandleFunc("/root", s.handleGetRoot)
	mux.HandleFunc("/root/history", s.handleGetRootHistory)
	mux.HandleFunc("/proof", s.handleGetProof)
	mux.HandleFunc("/verify", s.handleVerify)

	// Operator endpoints
	mux.HandleFunc("/admin/records", s.handleUpsertRecords)
	mux.HandleFunc("/admin/rebuild", s.handleRebuild)

	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.rateLimit(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

// rateLimit rejects requests once the token bucket is empty
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.logger.Sugar().Debugw("Rate limit exceeded", "path", r.URL.Path, "remote", r.RemoteAddr)
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
