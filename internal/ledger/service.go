package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pifp-labs/pifp-ledger/internal/assets"
	"github.com/pifp-labs/pifp-ledger/internal/kv"
	"github.com/pifp-labs/pifp-ledger/internal/notify"
	"github.com/pifp-labs/pifp-ledger/internal/observability"
	"github.com/pifp-labs/pifp-ledger/internal/rbac"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// DefaultEscrow is the address that holds deposited funds until release.
const DefaultEscrow = shared.Address("pifp:escrow")

// Service is the public operation surface of the funding ledger. It consults
// the role registry for authorization, the project store for persistence,
// and delegates value movement to the asset layer. Mutations are serialized
// by a single lock: each operation is one synchronous unit, and a failure
// never leaves persisted records out of step with the funds actually moved.
type Service struct {
	mu       sync.Mutex
	roles    *rbac.Registry
	store    *Store
	assets   assets.Transfer
	sink     notify.Sink
	logger   *slog.Logger
	metrics  *observability.OpsMetrics
	validate *validator.Validate
	escrow   shared.Address
	now      func() time.Time
}

// ServiceConfig collects the service dependencies.
type ServiceConfig struct {
	Roles   *rbac.Registry
	Store   *Store
	Assets  assets.Transfer
	Sink    notify.Sink
	Logger  *slog.Logger
	Metrics *observability.OpsMetrics
	// Escrow overrides DefaultEscrow when set.
	Escrow shared.Address
	// Now overrides the wall clock, for tests.
	Now func() time.Time
}

// NewService wires a Service.
func NewService(cfg ServiceConfig) *Service {
	escrow := cfg.Escrow
	if escrow == "" {
		escrow = DefaultEscrow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		roles:    cfg.Roles,
		store:    cfg.Store,
		assets:   cfg.Assets,
		sink:     cfg.Sink,
		logger:   logger,
		metrics:  cfg.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		escrow:   escrow,
		now:      now,
	}
}

// Init establishes the sole initial SuperAdmin. Callable exactly once.
func (s *Service) Init(ctx context.Context, superAdmin shared.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roles.Init(ctx, superAdmin); err != nil {
		return err
	}
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicRoleSet,
		ProjectID: notify.NoProject,
		Actor:     superAdmin,
		Role:      string(rbac.RoleSuperAdmin),
	})
	return nil
}

// GrantRole assigns role to target on behalf of caller.
func (s *Service) GrantRole(ctx context.Context, caller, target shared.Address, role rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roles.GrantRole(ctx, caller, target, role); err != nil {
		return err
	}
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicRoleSet,
		ProjectID: notify.NoProject,
		Actor:     target,
		Role:      string(role),
	})
	return nil
}

// RevokeRole removes target's role on behalf of caller.
func (s *Service) RevokeRole(ctx context.Context, caller, target shared.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roles.RevokeRole(ctx, caller, target); err != nil {
		return err
	}
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicRoleDel,
		ProjectID: notify.NoProject,
		Actor:     target,
	})
	return nil
}

// TransferSuperAdmin atomically moves SuperAdmin from current to next.
func (s *Service) TransferSuperAdmin(ctx context.Context, current, next shared.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roles.TransferSuperAdmin(ctx, current, next); err != nil {
		return err
	}
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicRoleDel,
		ProjectID: notify.NoProject,
		Actor:     current,
	})
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicRoleSet,
		ProjectID: notify.NoProject,
		Actor:     next,
		Role:      string(rbac.RoleSuperAdmin),
	})
	return nil
}

// SetOracle records oracle as the active verifier and grants it the Oracle
// role. Any previously designated oracle keeps its role until explicitly
// revoked; callers wanting a single active oracle revoke the old one first.
func (s *Service) SetOracle(ctx context.Context, caller, oracle shared.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roles.RequireAdminOrAbove(ctx, caller); err != nil {
		return err
	}
	if err := s.roles.GrantRole(ctx, caller, oracle, rbac.RoleOracle); err != nil {
		return err
	}
	if err := s.store.SetOracle(ctx, oracle); err != nil {
		return err
	}
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicRoleSet,
		ProjectID: notify.NoProject,
		Actor:     oracle,
		Role:      string(rbac.RoleOracle),
	})
	return nil
}

// RoleOf answers the role query. Pure read.
func (s *Service) RoleOf(ctx context.Context, addr shared.Address) (rbac.Role, bool, error) {
	return s.roles.RoleOf(ctx, addr)
}

// HasRole answers the membership query. Pure read.
func (s *Service) HasRole(ctx context.Context, addr shared.Address, role rbac.Role) (bool, error) {
	return s.roles.HasRole(ctx, addr, role)
}

// RegisterProjectInput carries the registration parameters.
type RegisterProjectInput struct {
	Creator        shared.Address   `validate:"required"`
	AcceptedTokens []shared.Address `validate:"required,min=1,unique"`
	Goal           *big.Int         `validate:"required"`
	ProofHash      shared.Hash
	Deadline       int64 `validate:"required"`
}

// RegisterProject creates a new funding project. The creator must hold
// SuperAdmin, Admin, or ProjectManager. Ids are assigned sequentially; the
// initial state is Funding with zero balances.
func (s *Service) RegisterProject(ctx context.Context, in RegisterProjectInput) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(ctx); err != nil {
		return Project{}, err
	}
	if err := s.validate.Struct(in); err != nil {
		return Project{}, fmt.Errorf("%w: %v", shared.ErrInvalidMilestones, err)
	}
	if err := s.roles.RequireCanRegister(ctx, in.Creator); err != nil {
		return Project{}, err
	}
	if in.Goal.Sign() <= 0 {
		return Project{}, shared.ErrInvalidMilestones
	}
	if in.Deadline <= s.now().Unix() {
		return Project{}, shared.ErrInvalidMilestones
	}

	id, err := s.store.NextProjectID(ctx)
	if err != nil {
		return Project{}, err
	}
	project := Project{
		ID:             id,
		Creator:        in.Creator,
		AcceptedTokens: in.AcceptedTokens,
		Goal:           new(big.Int).Set(in.Goal),
		ProofHash:      in.ProofHash,
		Deadline:       in.Deadline,
		Status:         StatusFunding,
	}
	if err := s.store.SaveProject(ctx, project); err != nil {
		return Project{}, err
	}
	project.Balances = make([]TokenBalance, 0, len(in.AcceptedTokens))
	for _, token := range in.AcceptedTokens {
		project.Balances = append(project.Balances, TokenBalance{Token: token, Balance: new(big.Int)})
	}

	s.metrics.ProjectRegistered()
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicCreated,
		ProjectID: int64(id),
		Actor:     in.Creator,
		Token:     in.AcceptedTokens[0],
		Amount:    in.Goal.String(),
	})
	s.logger.Info("project registered",
		slog.Uint64("project_id", id),
		slog.String("creator", string(in.Creator)),
		slog.String("goal", in.Goal.String()))
	return project, nil
}

// DepositInput carries the donation parameters.
type DepositInput struct {
	ProjectID uint64
	Donator   shared.Address `validate:"required"`
	Token     shared.Address `validate:"required"`
	Amount    *big.Int       `validate:"required"`
}

// Deposit moves amount of token from the donator into escrow and credits the
// project's balance by exactly that amount. The project must exist before
// any transfer is attempted; a failed transfer aborts with zero mutation.
// The first donation of a given donor×token pair bumps the donation counter,
// and a project whose cumulative balances reach the goal moves from Funding
// to Active.
func (s *Service) Deposit(ctx context.Context, in DepositInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(ctx); err != nil {
		return err
	}
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidMilestones, err)
	}
	if in.Amount.Sign() <= 0 {
		return shared.ErrInvalidMilestones
	}

	config, err := s.store.LoadProjectConfig(ctx, in.ProjectID)
	if err != nil {
		return err
	}
	state, err := s.store.LoadProjectState(ctx, in.ProjectID)
	if err != nil {
		return err
	}
	if !config.AcceptsToken(in.Token) {
		return shared.ErrInvalidMilestones
	}

	if err := s.assets.Transfer(ctx, in.Token, in.Donator, s.escrow, in.Amount); err != nil {
		return err
	}

	before, err := s.store.TokenBalance(ctx, in.ProjectID, in.Token)
	if err != nil {
		return err
	}
	after := new(big.Int).Add(before, in.Amount)

	// Every record the deposit touches lands in one batch so an I/O fault
	// cannot persist the balance without the donor pair or the state.
	entries := []kv.Entry{s.store.BalanceEntry(in.ProjectID, in.Token, after)}
	changed := false
	known, err := s.store.HasDonorPair(ctx, in.ProjectID, in.Donator, in.Token)
	if err != nil {
		return err
	}
	if !known {
		entries = append(entries, s.store.DonorPairEntry(in.ProjectID, in.Donator, in.Token))
		state.DonationCount++
		changed = true
	}
	if state.Status == StatusFunding {
		balances, err := s.store.Balances(ctx, config)
		if err != nil {
			return err
		}
		total := new(big.Int)
		for _, b := range balances {
			if b.Token == in.Token {
				total.Add(total, after)
				continue
			}
			total.Add(total, b.Balance)
		}
		if total.Cmp(config.Goal) >= 0 {
			state.Status = StatusActive
			changed = true
		}
	}
	if changed {
		entry, err := s.store.StateEntry(in.ProjectID, state)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}
	if err := s.store.Apply(ctx, entries...); err != nil {
		return err
	}

	s.metrics.DepositAccepted()
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicFunded,
		ProjectID: int64(in.ProjectID),
		Actor:     in.Donator,
		Token:     in.Token,
		Amount:    in.Amount.String(),
	})
	return nil
}

// VerifyAndRelease checks the submitted proof against the project's stored
// hash. On a byte-for-byte match the project completes and every held token
// balance is released to the creator. The designated oracle must hold the
// Oracle role. A proof mismatch aborts without state change.
func (s *Service) VerifyAndRelease(ctx context.Context, projectID uint64, submittedProof shared.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRunning(ctx); err != nil {
		return err
	}
	oracle, err := s.store.Oracle(ctx)
	if err != nil {
		return err
	}
	if err := s.roles.RequireOracle(ctx, oracle); err != nil {
		return err
	}

	config, err := s.store.LoadProjectConfig(ctx, projectID)
	if err != nil {
		return err
	}
	state, err := s.store.LoadProjectState(ctx, projectID)
	if err != nil {
		return err
	}
	switch state.Status {
	case StatusFunding, StatusActive:
	case StatusCompleted:
		return shared.ErrMilestoneAlreadyReleased
	case StatusExpired:
		// Kept for wire compatibility: expired projects surface as not
		// found here rather than as a distinct kind.
		return shared.ErrProjectNotFound
	default:
		return fmt.Errorf("ledger: project %d: unknown status %q", projectID, state.Status)
	}

	if submittedProof != config.ProofHash {
		return errors.New("ledger: proof verification failed: hash mismatch")
	}

	balances, err := s.store.Balances(ctx, config)
	if err != nil {
		return err
	}
	// Each token's held balance is zeroed as soon as its transfer lands, so
	// a failure partway through never leaves a paid-out balance on record.
	// A retry then releases only the tokens still held.
	for _, held := range balances {
		if held.Balance.Sign() == 0 {
			continue
		}
		if err := s.assets.Transfer(ctx, held.Token, s.escrow, config.Creator, held.Balance); err != nil {
			return err
		}
		if err := s.store.SetTokenBalance(ctx, projectID, held.Token, new(big.Int)); err != nil {
			return err
		}
	}

	state.Status = StatusCompleted
	if err := s.store.SaveProjectState(ctx, projectID, state); err != nil {
		return err
	}

	s.metrics.FundsReleased()
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicVerified,
		ProjectID: int64(projectID),
		Actor:     oracle,
	})
	for _, held := range balances {
		if held.Balance.Sign() == 0 {
			continue
		}
		s.emit(ctx, notify.Notification{
			Topic:     notify.TopicReleased,
			ProjectID: int64(projectID),
			Actor:     config.Creator,
			Token:     held.Token,
			Amount:    held.Balance.String(),
		})
	}
	s.logger.Info("project verified and released",
		slog.Uint64("project_id", projectID),
		slog.String("creator", string(config.Creator)))
	return nil
}

// MarkExpired moves a project past its deadline into Expired. Expiry is
// never pushed by a background sweep; an admin triggers it explicitly once
// the deadline has actually passed.
func (s *Service) MarkExpired(ctx context.Context, caller shared.Address, projectID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roles.RequireAdminOrAbove(ctx, caller); err != nil {
		return err
	}
	config, err := s.store.LoadProjectConfig(ctx, projectID)
	if err != nil {
		return err
	}
	state, err := s.store.LoadProjectState(ctx, projectID)
	if err != nil {
		return err
	}
	if s.now().Unix() <= config.Deadline {
		return shared.ErrInvalidMilestones
	}
	switch state.Status {
	case StatusFunding, StatusActive:
	case StatusCompleted:
		return shared.ErrMilestoneAlreadyReleased
	case StatusExpired:
		return shared.ErrProjectNotFound
	default:
		return fmt.Errorf("ledger: project %d: unknown status %q", projectID, state.Status)
	}
	state.Status = StatusExpired
	return s.store.SaveProjectState(ctx, projectID, state)
}

// Pause suspends register, deposit, and verification protocol-wide.
func (s *Service) Pause(ctx context.Context, caller shared.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roles.RequireAdminOrAbove(ctx, caller); err != nil {
		return err
	}
	if err := s.store.SetPaused(ctx, true); err != nil {
		return err
	}
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicPaused,
		ProjectID: notify.NoProject,
		Actor:     caller,
	})
	return nil
}

// Unpause resumes mutating operations.
func (s *Service) Unpause(ctx context.Context, caller shared.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.roles.RequireAdminOrAbove(ctx, caller); err != nil {
		return err
	}
	if err := s.store.SetPaused(ctx, false); err != nil {
		return err
	}
	s.emit(ctx, notify.Notification{
		Topic:     notify.TopicUnpaused,
		ProjectID: notify.NoProject,
		Actor:     caller,
	})
	return nil
}

// GetProject reconstructs the public project view. Pure read.
func (s *Service) GetProject(ctx context.Context, id uint64) (Project, error) {
	return s.store.LoadProject(ctx, id)
}

// GetProjectBalances returns the per-token balances in registration order.
// Pure read.
func (s *Service) GetProjectBalances(ctx context.Context, id uint64) ([]TokenBalance, error) {
	config, err := s.store.LoadProjectConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.Balances(ctx, config)
}

func (s *Service) requireRunning(ctx context.Context) error {
	paused, err := s.store.Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return shared.ErrProtocolPaused
	}
	return nil
}

// emit assigns the notification its sequence and operation id and hands it
// to the sink. Emission happens after the mutation succeeded; a sink failure
// is logged rather than unwinding the already-persisted operation.
func (s *Service) emit(ctx context.Context, n notify.Notification) {
	if s.sink == nil {
		return
	}
	seq, err := s.store.NextEventSequence(ctx)
	if err != nil {
		s.logger.Warn("event sequence unavailable", slog.Any("error", err))
		return
	}
	n.Sequence = seq
	n.OpID = uuid.New()
	n.EmittedAt = s.now().UTC()
	if err := s.sink.Emit(ctx, n); err != nil {
		s.logger.Warn("notification emit failed",
			slog.String("topic", string(n.Topic)),
			slog.Any("error", err))
		return
	}
	s.metrics.NotificationEmitted(string(n.Topic))
}
