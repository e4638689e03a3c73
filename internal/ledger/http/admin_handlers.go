package ledgerhttp

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pifp-labs/pifp-ledger/internal/auth"
	"github.com/pifp-labs/pifp-ledger/internal/ledger"
	"github.com/pifp-labs/pifp-ledger/internal/platform/httpx"
	"github.com/pifp-labs/pifp-ledger/internal/rbac"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// AdminService defines the mutation contract used by the admin handler.
type AdminService interface {
	RegisterProject(ctx context.Context, in ledger.RegisterProjectInput) (ledger.Project, error)
	Deposit(ctx context.Context, in ledger.DepositInput) error
	VerifyAndRelease(ctx context.Context, projectID uint64, submittedProof shared.Hash) error
	MarkExpired(ctx context.Context, caller shared.Address, projectID uint64) error
	GrantRole(ctx context.Context, caller, target shared.Address, role rbac.Role) error
	RevokeRole(ctx context.Context, caller, target shared.Address) error
	SetOracle(ctx context.Context, caller, oracle shared.Address) error
	Pause(ctx context.Context, caller shared.Address) error
	Unpause(ctx context.Context, caller shared.Address) error
}

// AdminHandler coordinates authenticated mutations against the ledger.
type AdminHandler struct {
	logger  *slog.Logger
	service AdminService
	guard   *auth.Service
}

// NewAdminHandler constructs the mutation HTTP handler.
func NewAdminHandler(logger *slog.Logger, service AdminService, guard *auth.Service) *AdminHandler {
	return &AdminHandler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers the authenticated mutation endpoints.
func (h *AdminHandler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(h.guard.Require)
		gr.Post("/projects", h.handleRegister)
		gr.Post("/projects/{id}/deposits", h.handleDeposit)
		gr.Post("/projects/{id}/release", h.handleRelease)
		gr.Post("/projects/{id}/expire", h.handleExpire)
		gr.Post("/admin/roles", h.handleGrantRole)
		gr.Delete("/admin/roles/{address}", h.handleRevokeRole)
		gr.Post("/admin/oracle", h.handleSetOracle)
		gr.Post("/admin/pause", h.handlePause)
		gr.Post("/admin/unpause", h.handleUnpause)
	})
}

type registerRequest struct {
	AcceptedTokens []shared.Address `json:"accepted_tokens"`
	Goal           string           `json:"goal"`
	ProofHash      shared.Hash      `json:"proof_hash"`
	Deadline       int64            `json:"deadline"`
}

func (h *AdminHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	goal, err := parseAmount(req.Goal)
	if err != nil {
		http.Error(w, "invalid goal", http.StatusBadRequest)
		return
	}
	project, err := h.service.RegisterProject(r.Context(), ledger.RegisterProjectInput{
		Creator:        actor,
		AcceptedTokens: req.AcceptedTokens,
		Goal:           goal,
		ProofHash:      req.ProofHash,
		Deadline:       req.Deadline,
	})
	if err != nil {
		h.respondError(w, "register project", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]uint64{"id": project.ID})
}

type depositRequest struct {
	Token  shared.Address `json:"token"`
	Amount string         `json:"amount"`
}

func (h *AdminHandler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := parseProjectID(r)
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	err = h.service.Deposit(r.Context(), ledger.DepositInput{
		ProjectID: id,
		Donator:   actor,
		Token:     req.Token,
		Amount:    amount,
	})
	if err != nil {
		h.respondError(w, "deposit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type releaseRequest struct {
	Proof shared.Hash `json:"proof"`
}

func (h *AdminHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := parseProjectID(r)
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}
	var req releaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.service.VerifyAndRelease(r.Context(), id, req.Proof); err != nil {
		h.respondError(w, "verify and release", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleExpire(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	id, err := parseProjectID(r)
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}
	if err := h.service.MarkExpired(r.Context(), actor, id); err != nil {
		h.respondError(w, "mark expired", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type grantRoleRequest struct {
	Target shared.Address `json:"target"`
	Role   string         `json:"role"`
}

func (h *AdminHandler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req grantRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	if err := h.service.GrantRole(r.Context(), actor, req.Target, role); err != nil {
		h.respondError(w, "grant role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	target := shared.Address(chi.URLParam(r, "address"))
	if target == "" {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	if err := h.service.RevokeRole(r.Context(), actor, target); err != nil {
		h.respondError(w, "revoke role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setOracleRequest struct {
	Oracle shared.Address `json:"oracle"`
}

func (h *AdminHandler) handleSetOracle(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var req setOracleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.service.SetOracle(r.Context(), actor, req.Oracle); err != nil {
		h.respondError(w, "set oracle", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.togglePause(w, r, true)
}

func (h *AdminHandler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	h.togglePause(w, r, false)
}

func (h *AdminHandler) togglePause(w http.ResponseWriter, r *http.Request, pause bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	var err error
	if pause {
		err = h.service.Pause(r.Context(), actor)
	} else {
		err = h.service.Unpause(r.Context(), actor)
	}
	if err != nil {
		h.respondError(w, "toggle pause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, shared.ErrProjectNotFound), errors.Is(err, shared.ErrRoleNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrNotAuthorized):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrProtocolPaused):
		httpx.Problem(w, http.StatusServiceUnavailable, "Protocol Paused", err.Error())
	case errors.Is(err, shared.ErrInvalidMilestones), errors.Is(err, shared.ErrGoalMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Input", err.Error())
	case errors.Is(err, shared.ErrInsufficientBalance):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Balance", err.Error())
	case errors.Is(err, shared.ErrMilestoneAlreadyReleased):
		httpx.Problem(w, http.StatusConflict, "Already Released", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.New("malformed amount")
	}
	return v, nil
}
