package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/reserve"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"github.com/pkg/errors"
)

// maxRequestBody bounds the size of JSON request bodies
const maxRequestBody = 4 << 20

// statusForError maps service errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, reserve.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, reserve.ErrRecordNotFound), errors.Is(err, merkle.ErrLeafNotFound):
		return http.StatusNotFound
	case errors.Is(err, reserve.ErrNoRoot), errors.Is(err, merkle.ErrEmptyDataset):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleGetRoot handles GET /root
func (s *Server) handleGetRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := s.service.CurrentRoot()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.RootResponse{
		RootHash:  snapshot.RootHex(),
		Version:   snapshot.ID.String(),
		LeafCount: snapshot.LeafCount,
		BuiltAt:   snapshot.BuiltAt.Unix(),
	})
}

// handleGetRootHistory handles GET /root/history
func (s *Server) handleGetRootHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	history, err := s.service.RootHistory()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.RootHistoryResponse{Roots: history})
}

// handleGetProof handles GET /proof?userId=<id>
func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	proof, err := s.service.ProofFor(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.ProofResponse{
		Record:   *proof.Record,
		RootHash: proof.Snapshot.RootHex(),
		Version:  proof.Snapshot.ID.String(),
		Path:     types.EncodeProofPath(proof.Path),
	})
}

// handleVerify handles POST /verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	if req.RootHash == "" {
		s.writeError(w, http.StatusBadRequest, "rootHash is required")
		return
	}

	path, err := types.DecodeProofPath(req.Path)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid path: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, types.VerifyResponse{
		Valid: s.service.Verify(&req.Record, path, req.RootHash),
	})
}

// handleUpsertRecords handles POST /admin/records
func (s *Server) handleUpsertRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.UpsertRecordsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if len(req.Records) == 0 {
		s.writeError(w, http.StatusBadRequest, "records is required")
		return
	}

	records := make([]*types.UserRecord, len(req.Records))
	for i := range req.Records {
		records[i] = &req.Records[i]
	}

	if err := s.service.UpsertRecords(r.Context(), records); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.UpsertRecordsResponse{Saved: len(records)})
}

// handleRebuild handles POST /admin/rebuild
func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := s.service.Rebuild(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, types.RebuildResponse{
		RootHash:  snapshot.RootHex(),
		Version:   snapshot.ID.String(),
		LeafCount: snapshot.LeafCount,
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, rootErr := s.service.CurrentRoot()
	resp := types.HealthResponse{Status: "ok", HasRoot: rootErr == nil}

	if err := s.service.HealthCheck(); err != nil {
		s.logger.Sugar().Warnw("Health check failed", "error", err)
		resp.Status = "unavailable"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed", "error", err)
		s.writeError(w, status, "Internal error")
		return
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Sugar().Errorw("Failed to encode response", "error", err)
	}
}
