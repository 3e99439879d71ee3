package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"Divvy/internal/ledger"
	"Divvy/internal/model"

	"github.com/gorilla/mux"
)

// CallerHeader carries the authenticated caller identity, set by the fronting proxy.
const CallerHeader = "X-Divvy-Caller"

// Server exposes the pool ledger over HTTP.
type Server struct {
	Ledger *ledger.Ledger
	router *mux.Router
}

// NewServer creates a Server and registers its routes.
func NewServer(l *ledger.Ledger) *Server {
	s := &Server{Ledger: l, router: mux.NewRouter()}
	r := s.router
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/participants", s.handleParticipants).Methods(http.MethodGet)
	r.HandleFunc("/balances/{address}", s.handleBalance).Methods(http.MethodGet)
	r.HandleFunc("/contributions", s.handleContribute).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals", s.handleWithdraw).Methods(http.MethodPost)
	r.HandleFunc("/windows/withdrawal", s.handleOpenWithdrawal).Methods(http.MethodPost)
	r.HandleFunc("/windows/contribution", s.handleOpenContribution).Methods(http.MethodPost)
	r.HandleFunc("/max-contribution", s.handleChangeMax).Methods(http.MethodPut)
	r.HandleFunc("/owner", s.handleTransferOwnership).Methods(http.MethodPut)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] http api listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Println("[INFO] http api stopped")
		return nil
	}
}

type statusResponse struct {
	Owner                model.Address `json:"owner"`
	Phase                model.Phase   `json:"phase"`
	Withdrawable         bool          `json:"withdrawable"`
	ContributionOpenedAt time.Time     `json:"contribution_opened_at"`
	WithdrawalOpenedAt   *time.Time    `json:"withdrawal_opened_at,omitempty"`
	NextTransitionAt     time.Time     `json:"next_transition_at"`
	MaxContribution      model.Amount  `json:"max_contribution"`
	HighestContribution  model.Amount  `json:"highest_contribution"`
	Total                model.Amount  `json:"total"`
	Participants         int           `json:"participants"`
	PayoutShare          model.Amount  `json:"payout_share"`
	Holdings             model.Amount  `json:"holdings"`
	Cycle                uint64        `json:"cycle"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.Ledger.Snapshot()
	resp := statusResponse{
		Owner:                state.Owner,
		Phase:                state.Phase,
		Withdrawable:         state.Withdrawable(),
		ContributionOpenedAt: state.ContributionOpenedAt,
		NextTransitionAt:     s.Ledger.NextTransitionAt(),
		MaxContribution:      state.MaxContribution,
		HighestContribution:  state.HighestContribution,
		Total:                state.Total,
		Participants:         len(state.Balances),
		PayoutShare:          state.PayoutShare,
		Holdings:             state.Holdings,
		Cycle:                state.Cycle,
	}
	if !state.WithdrawalOpenedAt.IsZero() {
		at := state.WithdrawalOpenedAt
		resp.WithdrawalOpenedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleParticipants(w http.ResponseWriter, _ *http.Request) {
	state := s.Ledger.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"participants": state.Balances})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr := model.Address(mux.Vars(r)["address"])
	writeJSON(w, http.StatusOK, model.Balance{Participant: addr, Amount: s.Ledger.BalanceOf(addr)})
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount model.Amount `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller := callerOf(r)
	if err := s.Ledger.Contribute(caller, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.Balance{Participant: caller, Amount: req.Amount})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller := callerOf(r)
	share, err := s.Ledger.Withdraw(caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participant": caller, "paid": share})
}

func (s *Server) handleOpenWithdrawal(w http.ResponseWriter, r *http.Request) {
	if err := s.Ledger.OpenWithdrawalWindow(callerOf(r)); err != nil {
		writeError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleOpenContribution(w http.ResponseWriter, r *http.Request) {
	if err := s.Ledger.OpenContributionWindow(callerOf(r)); err != nil {
		writeError(w, err)
		return
	}
	s.handleStatus(w, r)
}

func (s *Server) handleChangeMax(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Max model.Amount `json:"max"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Ledger.ChangeMaxContribution(callerOf(r), req.Max); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"max_contribution": req.Max})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner model.Address `json:"owner"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.Ledger.TransferOwnership(callerOf(r), req.Owner); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": req.Owner.Normalize()})
}

func callerOf(r *http.Request) model.Address {
	return model.Address(r.Header.Get(CallerHeader)).Normalize()
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "BAD_REQUEST", Reason: err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// StatusFor maps a ledger error code to an HTTP status.
func StatusFor(code ledger.Code) int {
	switch code {
	case ledger.CodeUnauthorized:
		return http.StatusForbidden
	case ledger.CodePhaseError, ledger.CodeAlreadyOpen, ledger.CodeDuplicateContribution:
		return http.StatusConflict
	case ledger.CodeTooEarly:
		return http.StatusTooEarly
	case ledger.CodeLimitExceeded, ledger.CodeInvalidLimit, ledger.CodeInvalidAmount, ledger.CodeInvalidAddress:
		return http.StatusUnprocessableEntity
	case ledger.CodeNotAParticipant:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var lerr *ledger.Error
	if !errors.As(err, &lerr) {
		log.Printf("[ERROR] unexpected ledger error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: string(ledger.CodeUnknown), Reason: "internal error"})
		return
	}
	writeJSON(w, StatusFor(lerr.Code), errorResponse{Code: string(lerr.Code), Reason: lerr.Reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}
