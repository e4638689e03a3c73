package ledgerhttp

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/pifp-labs/pifp-ledger/internal/ledger"
	"github.com/pifp-labs/pifp-ledger/internal/platform/httpx"
	"github.com/pifp-labs/pifp-ledger/internal/rbac"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

const requestTimeout = 2 * time.Second

// LedgerService defines the read contract used by the handler.
type LedgerService interface {
	GetProject(ctx context.Context, id uint64) (ledger.Project, error)
	GetProjectBalances(ctx context.Context, id uint64) ([]ledger.TokenBalance, error)
	RoleOf(ctx context.Context, addr shared.Address) (rbac.Role, bool, error)
}

// Handler coordinates HTTP reads against the ledger.
type Handler struct {
	logger  *slog.Logger
	service LedgerService
	group   singleflight.Group
	printer *message.Printer
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, service LedgerService) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		printer: message.NewPrinter(language.English),
	}
}

type balanceResponse struct {
	Token   shared.Address `json:"token"`
	Balance string         `json:"balance"`
	Display string         `json:"display"`
}

type projectResponse struct {
	ID             uint64               `json:"id"`
	Creator        shared.Address       `json:"creator"`
	AcceptedTokens []shared.Address     `json:"accepted_tokens"`
	Goal           string               `json:"goal"`
	ProofHash      shared.Hash          `json:"proof_hash"`
	Deadline       int64                `json:"deadline"`
	Status         ledger.ProjectStatus `json:"status"`
	DonationCount  uint32               `json:"donation_count"`
	Balances       []balanceResponse    `json:"balances"`
}

type roleResponse struct {
	Address shared.Address `json:"address"`
	Role    string         `json:"role"`
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, err := parseProjectID(r)
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err, _ := h.group.Do("project:"+strconv.FormatUint(id, 10), func() (interface{}, error) {
		return h.service.GetProject(ctx, id)
	})
	if err != nil {
		h.respondError(w, "get project", err)
		return
	}
	project := result.(ledger.Project)

	h.respondJSON(w, projectResponse{
		ID:             project.ID,
		Creator:        project.Creator,
		AcceptedTokens: project.AcceptedTokens,
		Goal:           project.Goal.String(),
		ProofHash:      project.ProofHash,
		Deadline:       project.Deadline,
		Status:         project.Status,
		DonationCount:  project.DonationCount,
		Balances:       h.renderBalances(project.Balances),
	})
}

func (h *Handler) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	id, err := parseProjectID(r)
	if err != nil {
		http.Error(w, "invalid project id", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err, _ := h.group.Do("balances:"+strconv.FormatUint(id, 10), func() (interface{}, error) {
		return h.service.GetProjectBalances(ctx, id)
	})
	if err != nil {
		h.respondError(w, "get balances", err)
		return
	}
	balances := result.([]ledger.TokenBalance)

	h.respondJSON(w, h.renderBalances(balances))
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	addr := shared.Address(chi.URLParam(r, "address"))
	if addr == "" {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	role, ok, err := h.service.RoleOf(ctx, addr)
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	h.respondJSON(w, roleResponse{Address: addr, Role: string(role)})
}

func (h *Handler) renderBalances(balances []ledger.TokenBalance) []balanceResponse {
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			Token:   b.Token,
			Balance: b.Balance.String(),
			Display: h.displayAmount(b.Balance),
		})
	}
	return out
}

// displayAmount renders a grouped form for human consumption. Amounts beyond
// uint64 range fall back to the plain decimal string.
func (h *Handler) displayAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	if v.IsUint64() {
		return h.printer.Sprint(number.Decimal(v.Uint64()))
	}
	return v.String()
}

func (h *Handler) respondJSON(w http.ResponseWriter, payload interface{}) {
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, shared.ErrProjectNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "project not found")
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func parseProjectID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
}
