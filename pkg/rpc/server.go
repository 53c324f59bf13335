package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog/log"

	"spendzk/pkg/prover"
	"spendzk/pkg/state"
)

// JSON-RPC error codes
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeSpendRejected  = -32000

	// maxRequestSize bounds a single request body
	maxRequestSize = 1 << 20
)

// Server exposes a settlement registry over JSON-RPC
type Server struct {
	registry *state.Registry
	verifier *prover.ProofVerifier
	port     int
	// bound on concurrent artifact checks in spend_settleBatch
	verifyConcurrency int
	server   *http.Server
	mu       sync.RWMutex
}

// JSONRPCRequest represents a JSON-RPC request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SpendProofArgs is the wire form of a prover.SpendProof
type SpendProofArgs struct {
	Artifact   hexutil.Bytes  `json:"artifact"`
	MerkleRoot common.Hash    `json:"merkleRoot"`
	Nullifier  common.Hash    `json:"nullifier"`
	Amount     hexutil.Uint64 `json:"amount"`
}

// ToProof converts the arguments to a prover.SpendProof
func (a *SpendProofArgs) ToProof() *prover.SpendProof {
	return &prover.SpendProof{
		Artifact:   a.Artifact,
		MerkleRoot: a.MerkleRoot,
		Nullifier:  a.Nullifier,
		Amount:     uint64(a.Amount),
	}
}

// NewSpendProofArgs converts p to its wire form
func NewSpendProofArgs(p *prover.SpendProof) *SpendProofArgs {
	return &SpendProofArgs{
		Artifact:   p.Artifact,
		MerkleRoot: p.MerkleRoot,
		Nullifier:  p.Nullifier,
		Amount:     hexutil.Uint64(p.Amount),
	}
}

// SettleResult is one entry of a spend_settleBatch reply
type SettleResult struct {
	Settled   bool        `json:"settled"`
	Nullifier common.Hash `json:"nullifier"`
	Error     string      `json:"error,omitempty"`
}

// AnchorResult is returned by spend_anchor
type AnchorResult struct {
	Path    []common.Hash `json:"path"`
	Indices []bool        `json:"indices"`
	Root    common.Hash   `json:"root"`
}

// NewServer creates a new RPC server
func NewServer(registry *state.Registry, verifier *prover.ProofVerifier, port, verifyConcurrency int) *Server {
	return &Server{
		registry:          registry,
		verifier:          verifier,
		port:              port,
		verifyConcurrency: verifyConcurrency,
	}
}

// Handler returns the HTTP handler serving JSON-RPC requests
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	return mux
}

// Start starts the RPC server
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %v", addr, err)
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", s.port).Msg("Starting RPC server")
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Stop stops the RPC server
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		log.Info().Msg("Stopping RPC server")
		return s.server.Close()
	}
	return nil
}

// handleRPC handles JSON-RPC requests
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, &req, codeParseError, "Parse error")
		return
	}

	// Process request
	switch req.Method {
	case "spend_getRoot":
		writeResult(w, &req, map[string]interface{}{
			"root": common.Hash(s.registry.Root()),
		})
	case "spend_isKnownRoot":
		s.handleIsKnownRoot(w, &req)
	case "spend_isSpent":
		s.handleIsSpent(w, &req)
	case "spend_anchor":
		s.handleAnchor(w, &req)
	case "spend_settle":
		s.handleSettle(r.Context(), w, &req)
	case "spend_settleBatch":
		s.handleSettleBatch(r.Context(), w, &req)
	default:
		writeError(w, &req, codeMethodNotFound, "Method not found")
	}
}

// hashParam decodes a single 32-byte hex parameter
func hashParam(req *JSONRPCRequest) (common.Hash, bool) {
	var params []string
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) < 1 {
		return common.Hash{}, false
	}
	b, err := hexutil.Decode(params[0])
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func (s *Server) handleIsKnownRoot(w http.ResponseWriter, req *JSONRPCRequest) {
	root, ok := hashParam(req)
	if !ok {
		writeError(w, req, codeInvalidParams, "Invalid params")
		return
	}
	writeResult(w, req, map[string]interface{}{
		"known": s.registry.IsKnownRoot(root),
	})
}

func (s *Server) handleIsSpent(w http.ResponseWriter, req *JSONRPCRequest) {
	nullifier, ok := hashParam(req)
	if !ok {
		writeError(w, req, codeInvalidParams, "Invalid params")
		return
	}
	writeResult(w, req, map[string]interface{}{
		"spent": s.registry.Spent().Contains(nullifier),
	})
}

// handleAnchor appends a note leaf and returns its membership path
func (s *Server) handleAnchor(w http.ResponseWriter, req *JSONRPCRequest) {
	leaf, ok := hashParam(req)
	if !ok {
		writeError(w, req, codeInvalidParams, "Invalid params")
		return
	}

	proof, root, err := s.registry.Anchor(leaf)
	if err != nil {
		writeError(w, req, codeInternalError, fmt.Sprintf("Failed to anchor leaf: %v", err))
		return
	}

	result := AnchorResult{
		Path:    make([]common.Hash, len(proof.Path)),
		Indices: proof.Indices,
		Root:    root,
	}
	for i, sibling := range proof.Path {
		result.Path[i] = sibling
	}
	writeResult(w, req, result)
}

func (s *Server) handleSettle(ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest) {
	var params []SpendProofArgs
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) < 1 {
		writeError(w, req, codeInvalidParams, "Invalid params")
		return
	}

	p := params[0].ToProof()
	if err := s.registry.Settle(ctx, s.verifier, p); err != nil {
		code := codeSpendRejected
		if !isRejection(err) {
			code = codeInternalError
		}
		writeError(w, req, code, err.Error())
		return
	}

	writeResult(w, req, map[string]interface{}{
		"settled":   true,
		"nullifier": common.Hash(p.Nullifier),
	})
}

func (s *Server) handleSettleBatch(ctx context.Context, w http.ResponseWriter, req *JSONRPCRequest) {
	var params [][]SpendProofArgs
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params) < 1 {
		writeError(w, req, codeInvalidParams, "Invalid params")
		return
	}

	proofs := make([]*prover.SpendProof, len(params[0]))
	for i := range params[0] {
		proofs[i] = params[0][i].ToProof()
	}

	errs := s.registry.SettleBatch(ctx, s.verifier, proofs, s.verifyConcurrency)
	results := make([]SettleResult, len(proofs))
	for i, p := range proofs {
		results[i] = SettleResult{Settled: errs[i] == nil, Nullifier: p.Nullifier}
		if errs[i] != nil {
			results[i].Error = errs[i].Error()
		}
	}
	writeResult(w, req, results)
}

func isRejection(err error) bool {
	return errors.Is(err, state.ErrDoubleSpend) ||
		errors.Is(err, state.ErrUnknownRoot) ||
		errors.Is(err, prover.ErrOutputMismatch) ||
		errors.Is(err, prover.ErrVerificationFailure)
}

func writeResult(w http.ResponseWriter, req *JSONRPCRequest, result interface{}) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON-RPC error response
func writeError(w http.ResponseWriter, req *JSONRPCRequest, code int, message string) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
		ID: req.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode error response")
	}
}
