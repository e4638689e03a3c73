package ledgerhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pifp-labs/pifp-ledger/internal/ledger"
	"github.com/pifp-labs/pifp-ledger/internal/rbac"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

type stubService struct {
	project  ledger.Project
	balances []ledger.TokenBalance
	role     rbac.Role
	hasRole  bool
	err      error
}

func (s *stubService) GetProject(ctx context.Context, id uint64) (ledger.Project, error) {
	if s.err != nil {
		return ledger.Project{}, s.err
	}
	return s.project, nil
}

func (s *stubService) GetProjectBalances(ctx context.Context, id uint64) ([]ledger.TokenBalance, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.balances, nil
}

func (s *stubService) RoleOf(ctx context.Context, addr shared.Address) (rbac.Role, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	return s.role, s.hasRole, nil
}

func testRouter(svc LedgerService) http.Handler {
	h := NewHandler(slog.Default(), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func testHash() shared.Hash {
	var h shared.Hash
	h[0] = 0xab
	return h
}

func TestGetProject(t *testing.T) {
	svc := &stubService{
		project: ledger.Project{
			ID:             3,
			Creator:        "addr:creator",
			AcceptedTokens: []shared.Address{"token:usd"},
			Goal:           big.NewInt(1_000_000),
			ProofHash:      testHash(),
			Deadline:       1_800_000_000,
			Status:         ledger.StatusActive,
			DonationCount:  2,
			Balances: []ledger.TokenBalance{
				{Token: "token:usd", Balance: big.NewInt(1_234_567)},
			},
		},
	}

	rr := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects/3", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body projectResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ID != 3 || body.Status != ledger.StatusActive || body.Goal != "1000000" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Balances) != 1 || body.Balances[0].Balance != "1234567" {
		t.Fatalf("unexpected balances: %+v", body.Balances)
	}
	if body.Balances[0].Display != "1,234,567" {
		t.Fatalf("unexpected display amount: %q", body.Balances[0].Display)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	svc := &stubService{err: shared.ErrProjectNotFound}

	rr := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects/404", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetProjectBadID(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(&stubService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects/abc", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestGetBalances(t *testing.T) {
	svc := &stubService{
		balances: []ledger.TokenBalance{
			{Token: "token:usd", Balance: big.NewInt(500)},
			{Token: "token:eur", Balance: big.NewInt(0)},
		},
	}

	rr := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/projects/1/balances", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body []balanceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 2 || body[0].Balance != "500" || body[1].Balance != "0" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestGetRole(t *testing.T) {
	svc := &stubService{role: rbac.RoleOracle, hasRole: true}

	rr := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles/addr:oracle", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body roleResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Role != "oracle" {
		t.Fatalf("unexpected role %q", body.Role)
	}
}

func TestGetRoleUnknownAddress(t *testing.T) {
	svc := &stubService{hasRole: false}

	rr := httptest.NewRecorder()
	testRouter(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles/addr:nobody", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
