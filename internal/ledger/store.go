package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"

	"github.com/pifp-labs/pifp-ledger/internal/kv"
	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Instance-tier keys: one per deployment, renewed on the short cycle.
const (
	keyProjectCount = "ledger:project_count"
	keyOracle       = "ledger:oracle"
	keyPaused       = "ledger:paused"
	keyEventSeq     = "ledger:event_seq"
)

func configKey(id uint64) string { return "ledger:project:" + strconv.FormatUint(id, 10) + ":config" }
func stateKey(id uint64) string  { return "ledger:project:" + strconv.FormatUint(id, 10) + ":state" }

func balanceKey(id uint64, token shared.Address) string {
	return "ledger:project:" + strconv.FormatUint(id, 10) + ":balance:" + string(token)
}

func donorPairKey(id uint64, donor, token shared.Address) string {
	return "ledger:project:" + strconv.FormatUint(id, 10) + ":donor:" + string(donor) + ":" + string(token)
}

// Storage records. Amounts travel as decimal strings so 128-bit values
// survive JSON exactly.
type projectConfigRecord struct {
	ID             uint64   `json:"id"`
	Creator        string   `json:"creator"`
	AcceptedTokens []string `json:"accepted_tokens"`
	Goal           string   `json:"goal"`
	ProofHash      string   `json:"proof_hash"`
	Deadline       int64    `json:"deadline"`
}

type projectStateRecord struct {
	Status        string `json:"status"`
	DonationCount uint32 `json:"donation_count"`
}

// Store persists project records on an injected kv.Store, split into the
// immutable config and the mutable state. Instance entries (the id counter,
// the oracle reference, flags) renew on the short tier; per-project entries
// renew independently on the long tier.
type Store struct {
	mu         sync.Mutex
	store      kv.Store
	instance   kv.Tier
	persistent kv.Tier
}

// NewStore builds a Store with the standard renewal tiers.
func NewStore(store kv.Store) *Store {
	return &Store{store: store, instance: kv.InstanceTier, persistent: kv.PersistentTier}
}

// NextProjectID atomically reads, increments, and writes back the project
// counter, returning the pre-increment value as the new project's id. Ids
// are strictly sequential from 0 with no gaps.
func (s *Store) NextProjectID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.instance.Renew(ctx, s.store, keyProjectCount); err != nil {
		return 0, err
	}
	current := uint64(0)
	raw, err := s.store.Get(ctx, keyProjectCount)
	if err == nil {
		current, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ledger: project counter corrupt: %w", err)
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return 0, fmt.Errorf("ledger: read project counter: %w", err)
	}
	next := strconv.FormatUint(current+1, 10)
	if err := s.store.Set(ctx, keyProjectCount, []byte(next), s.instance.Extend); err != nil {
		return 0, fmt.Errorf("ledger: write project counter: %w", err)
	}
	return current, nil
}

// ProjectCount returns the number of registered projects.
func (s *Store) ProjectCount(ctx context.Context) (uint64, error) {
	raw, err := s.store.Get(ctx, keyProjectCount)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: read project counter: %w", err)
	}
	return strconv.ParseUint(string(raw), 10, 64)
}

// NextEventSequence advances the notification sequence and returns the new
// position. The sequence orders emitted notifications for downstream replay.
func (s *Store) NextEventSequence(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.instance.Renew(ctx, s.store, keyEventSeq); err != nil {
		return 0, err
	}
	current := uint64(0)
	raw, err := s.store.Get(ctx, keyEventSeq)
	if err == nil {
		current, err = strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ledger: event sequence corrupt: %w", err)
		}
	} else if !errors.Is(err, kv.ErrNotFound) {
		return 0, fmt.Errorf("ledger: read event sequence: %w", err)
	}
	next := current + 1
	if err := s.store.Set(ctx, keyEventSeq, []byte(strconv.FormatUint(next, 10)), s.instance.Extend); err != nil {
		return 0, fmt.Errorf("ledger: write event sequence: %w", err)
	}
	return next, nil
}

// SaveProject writes the config, the initial state, and a zero balance entry
// per accepted token in one batch. Used only at registration.
func (s *Store) SaveProject(ctx context.Context, project Project) error {
	record := projectConfigRecord{
		ID:             project.ID,
		Creator:        string(project.Creator),
		AcceptedTokens: make([]string, 0, len(project.AcceptedTokens)),
		Goal:           project.Goal.String(),
		ProofHash:      project.ProofHash.String(),
		Deadline:       project.Deadline,
	}
	for _, token := range project.AcceptedTokens {
		record.AcceptedTokens = append(record.AcceptedTokens, string(token))
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ledger: encode config: %w", err)
	}
	entries := make([]kv.Entry, 0, 2+len(project.AcceptedTokens))
	entries = append(entries, kv.Entry{Key: configKey(project.ID), Value: raw, Retention: s.persistent.Extend})
	state, err := s.StateEntry(project.ID, ProjectState{Status: project.Status, DonationCount: project.DonationCount})
	if err != nil {
		return err
	}
	entries = append(entries, state)
	for _, token := range project.AcceptedTokens {
		entries = append(entries, s.BalanceEntry(project.ID, token, new(big.Int)))
	}
	return s.Apply(ctx, entries...)
}

// Apply commits entries through a single atomic batch. A failure leaves every
// key untouched.
func (s *Store) Apply(ctx context.Context, entries ...kv.Entry) error {
	if err := s.store.SetMulti(ctx, entries); err != nil {
		return fmt.Errorf("ledger: apply batch: %w", err)
	}
	return nil
}

// StateEntry encodes the mutable half as a pending batch entry.
func (s *Store) StateEntry(id uint64, state ProjectState) (kv.Entry, error) {
	raw, err := json.Marshal(projectStateRecord{
		Status:        string(state.Status),
		DonationCount: state.DonationCount,
	})
	if err != nil {
		return kv.Entry{}, fmt.Errorf("ledger: encode state: %w", err)
	}
	return kv.Entry{Key: stateKey(id), Value: raw, Retention: s.persistent.Extend}, nil
}

// BalanceEntry encodes one token balance as a pending batch entry.
func (s *Store) BalanceEntry(id uint64, token shared.Address, amount *big.Int) kv.Entry {
	return kv.Entry{Key: balanceKey(id, token), Value: []byte(amount.String()), Retention: s.persistent.Extend}
}

// DonorPairEntry encodes a donor and token membership as a pending batch entry.
func (s *Store) DonorPairEntry(id uint64, donor, token shared.Address) kv.Entry {
	return kv.Entry{Key: donorPairKey(id, donor, token), Value: []byte("1"), Retention: s.persistent.Extend}
}

// LoadProjectConfig reads only the immutable half.
func (s *Store) LoadProjectConfig(ctx context.Context, id uint64) (ProjectConfig, error) {
	key := configKey(id)
	if err := s.persistent.Renew(ctx, s.store, key); err != nil {
		return ProjectConfig{}, err
	}
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return ProjectConfig{}, shared.ErrProjectNotFound
	}
	if err != nil {
		return ProjectConfig{}, fmt.Errorf("ledger: load config %d: %w", id, err)
	}
	var record projectConfigRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return ProjectConfig{}, fmt.Errorf("ledger: decode config %d: %w", id, err)
	}
	goal, ok := new(big.Int).SetString(record.Goal, 10)
	if !ok {
		return ProjectConfig{}, fmt.Errorf("ledger: config %d: malformed goal %q", id, record.Goal)
	}
	proofHash, err := shared.ParseHash(record.ProofHash)
	if err != nil {
		return ProjectConfig{}, fmt.Errorf("ledger: config %d: %w", id, err)
	}
	config := ProjectConfig{
		ID:             record.ID,
		Creator:        shared.Address(record.Creator),
		AcceptedTokens: make([]shared.Address, 0, len(record.AcceptedTokens)),
		Goal:           goal,
		ProofHash:      proofHash,
		Deadline:       record.Deadline,
	}
	for _, token := range record.AcceptedTokens {
		config.AcceptedTokens = append(config.AcceptedTokens, shared.Address(token))
	}
	return config, nil
}

// LoadProjectState reads only the mutable half.
func (s *Store) LoadProjectState(ctx context.Context, id uint64) (ProjectState, error) {
	key := stateKey(id)
	if err := s.persistent.Renew(ctx, s.store, key); err != nil {
		return ProjectState{}, err
	}
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return ProjectState{}, shared.ErrProjectNotFound
	}
	if err != nil {
		return ProjectState{}, fmt.Errorf("ledger: load state %d: %w", id, err)
	}
	var record projectStateRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return ProjectState{}, fmt.Errorf("ledger: decode state %d: %w", id, err)
	}
	status := ProjectStatus(record.Status)
	if !status.Valid() {
		return ProjectState{}, fmt.Errorf("ledger: state %d: unknown status %q", id, record.Status)
	}
	return ProjectState{Status: status, DonationCount: record.DonationCount}, nil
}

// SaveProjectState writes only the mutable half, keeping deposits and
// verification cheap relative to rewriting the full record.
func (s *Store) SaveProjectState(ctx context.Context, id uint64, state ProjectState) error {
	entry, err := s.StateEntry(id, state)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, entry.Key, entry.Value, entry.Retention); err != nil {
		return fmt.Errorf("ledger: save state %d: %w", id, err)
	}
	return nil
}

// LoadProject reconstructs the full view from config, state, and balances.
func (s *Store) LoadProject(ctx context.Context, id uint64) (Project, error) {
	config, err := s.LoadProjectConfig(ctx, id)
	if err != nil {
		return Project{}, err
	}
	state, err := s.LoadProjectState(ctx, id)
	if err != nil {
		return Project{}, err
	}
	balances, err := s.Balances(ctx, config)
	if err != nil {
		return Project{}, err
	}
	return Project{
		ID:             config.ID,
		Creator:        config.Creator,
		AcceptedTokens: config.AcceptedTokens,
		Goal:           config.Goal,
		ProofHash:      config.ProofHash,
		Deadline:       config.Deadline,
		Status:         state.Status,
		DonationCount:  state.DonationCount,
		Balances:       balances,
	}, nil
}

// TokenBalance reads the held amount of one token. Missing entries read as
// zero so that configs written before a token's first deposit stay cheap.
func (s *Store) TokenBalance(ctx context.Context, id uint64, token shared.Address) (*big.Int, error) {
	key := balanceKey(id, token)
	if err := s.persistent.Renew(ctx, s.store, key); err != nil {
		return nil, err
	}
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: load balance %d/%s: %w", id, token, err)
	}
	value, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("ledger: balance %d/%s: malformed amount %q", id, token, raw)
	}
	return value, nil
}

// SetTokenBalance writes the held amount of one token.
func (s *Store) SetTokenBalance(ctx context.Context, id uint64, token shared.Address, amount *big.Int) error {
	if err := s.store.Set(ctx, balanceKey(id, token), []byte(amount.String()), s.persistent.Extend); err != nil {
		return fmt.Errorf("ledger: save balance %d/%s: %w", id, token, err)
	}
	return nil
}

// Balances reads every accepted token's balance in registration order.
func (s *Store) Balances(ctx context.Context, config ProjectConfig) ([]TokenBalance, error) {
	out := make([]TokenBalance, 0, len(config.AcceptedTokens))
	for _, token := range config.AcceptedTokens {
		balance, err := s.TokenBalance(ctx, config.ID, token)
		if err != nil {
			return nil, err
		}
		out = append(out, TokenBalance{Token: token, Balance: balance})
	}
	return out, nil
}

// HasDonorPair reports whether donor has already funded the project with
// token. Backs the unique donor×token donation counter.
func (s *Store) HasDonorPair(ctx context.Context, id uint64, donor, token shared.Address) (bool, error) {
	key := donorPairKey(id, donor, token)
	if err := s.persistent.Renew(ctx, s.store, key); err != nil {
		return false, err
	}
	_, err := s.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: load donor pair: %w", err)
	}
	return true, nil
}

// PutDonorPair records the donor×token membership.
func (s *Store) PutDonorPair(ctx context.Context, id uint64, donor, token shared.Address) error {
	if err := s.store.Set(ctx, donorPairKey(id, donor, token), []byte("1"), s.persistent.Extend); err != nil {
		return fmt.Errorf("ledger: save donor pair: %w", err)
	}
	return nil
}

// SetOracle stores the active oracle reference in the instance tier.
func (s *Store) SetOracle(ctx context.Context, oracle shared.Address) error {
	if err := s.store.Set(ctx, keyOracle, []byte(oracle), s.instance.Extend); err != nil {
		return fmt.Errorf("ledger: set oracle: %w", err)
	}
	return nil
}

// Oracle returns the active oracle reference. A missing reference is an
// untyped failure, not one of the typed error kinds.
func (s *Store) Oracle(ctx context.Context) (shared.Address, error) {
	if err := s.instance.Renew(ctx, s.store, keyOracle); err != nil {
		return "", err
	}
	raw, err := s.store.Get(ctx, keyOracle)
	if errors.Is(err, kv.ErrNotFound) {
		return "", errors.New("ledger: oracle not set")
	}
	if err != nil {
		return "", fmt.Errorf("ledger: load oracle: %w", err)
	}
	return shared.Address(raw), nil
}

// SetPaused flips the protocol-wide pause flag.
func (s *Store) SetPaused(ctx context.Context, paused bool) error {
	if !paused {
		if err := s.store.Delete(ctx, keyPaused); err != nil {
			return fmt.Errorf("ledger: clear pause flag: %w", err)
		}
		return nil
	}
	if err := s.store.Set(ctx, keyPaused, []byte("1"), s.instance.Extend); err != nil {
		return fmt.Errorf("ledger: set pause flag: %w", err)
	}
	return nil
}

// Paused reports whether mutations are suspended protocol-wide.
func (s *Store) Paused(ctx context.Context) (bool, error) {
	if err := s.instance.Renew(ctx, s.store, keyPaused); err != nil {
		return false, err
	}
	_, err := s.store.Get(ctx, keyPaused)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: load pause flag: %w", err)
	}
	return true, nil
}
