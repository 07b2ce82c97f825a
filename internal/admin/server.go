package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/scheduler"
	"github.com/kodax/deposit-reconciler/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// ScanRequester is the slice of the scheduler the admin API drives.
type ScanRequester interface {
	ScanAll(ctx context.Context, opts scheduler.Options) (*scheduler.Report, error)
	ScanUser(ctx context.Context, userID string, opts scheduler.Options) (*scheduler.Report, error)
}

// Server provides the operational HTTP surface: on-demand scans (with
// dry-run), recent cycle outcomes, and wallet lookups.
type Server struct {
	scans  ScanRequester
	cycles store.ScanCycleRepository
	users  store.UserRepository
	logger *slog.Logger
}

func NewServer(scans ScanRequester, cycles store.ScanCycleRepository, users store.UserRepository, logger *slog.Logger) *Server {
	return &Server{
		scans:  scans,
		cycles: cycles,
		users:  users,
		logger: logger.With("component", "admin"),
	}
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/v1/scan", s.handleScan)
	mux.HandleFunc("GET /admin/v1/cycles", s.handleListCycles)
	mux.HandleFunc("GET /admin/v1/wallets", s.handleGetWallets)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSONBody reads and decodes a JSON request body into v.
// Returns false (and writes an error response) if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
		return false
	}
	return true
}

type scanRequest struct {
	UserID string `json:"user_id"`
	DryRun bool   `json:"dry_run"`
}

type dryRunDepositResponse struct {
	Chain  string `json:"chain"`
	TxHash string `json:"tx_hash"`
	UserID string `json:"user_id"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type scanResponse struct {
	Cycle          model.ScanCycle         `json:"cycle"`
	DryRunDeposits []dryRunDepositResponse `json:"dry_run_deposits,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	opts := scheduler.Options{DryRun: req.DryRun}

	var (
		report *scheduler.Report
		err    error
	)
	if req.UserID != "" {
		report, err = s.scans.ScanUser(r.Context(), req.UserID, opts)
	} else {
		report, err = s.scans.ScanAll(r.Context(), opts)
	}
	if err != nil {
		if errors.Is(err, scheduler.ErrCycleInProgress) {
			http.Error(w, `{"error":"a reconciliation cycle is already in progress"}`, http.StatusConflict)
			return
		}
		s.logger.Error("scan failed", "user_id", req.UserID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	resp := scanResponse{Cycle: report.Cycle}
	for _, dep := range report.DryRunDeposits {
		resp.DryRunDeposits = append(resp.DryRunDeposits, dryRunDepositResponse{
			Chain:  string(dep.Chain),
			TxHash: dep.TxHash,
			UserID: dep.UserID,
			Token:  dep.Token,
			Amount: dep.Amount.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, `{"error":"limit must be an integer in [1, 500]"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	cycles, err := s.cycles.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list cycles failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cycles)
}

type walletResponse struct {
	UserID  string            `json:"user_id"`
	Wallets map[string]string `json:"wallets"`
}

func (s *Server) handleGetWallets(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, `{"error":"user_id query param required"}`, http.StatusBadRequest)
		return
	}

	user, err := s.users.FindByID(r.Context(), userID)
	if err != nil {
		s.logger.Error("wallet lookup failed", "user_id", userID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		return
	}

	resp := walletResponse{UserID: user.ID, Wallets: make(map[string]string, len(user.Wallets))}
	for ch, addr := range user.Wallets {
		resp.Wallets[string(ch)] = addr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
