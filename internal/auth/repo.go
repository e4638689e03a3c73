package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Repository defines persistence operations for API keys.
type Repository interface {
	Create(ctx context.Context, key APIKey) error
	FindByID(ctx context.Context, id string) (APIKey, error)
	Revoke(ctx context.Context, id string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create persists a new API key record.
func (r *PGRepository) Create(ctx context.Context, key APIKey) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_keys (id, secret_hash, actor, created_at) VALUES ($1, $2, $3, $4)`,
		key.ID, key.SecretHash, string(key.Actor), key.CreatedAt.UTC())
	return err
}

// FindByID fetches a key by its public identifier.
func (r *PGRepository) FindByID(ctx context.Context, id string) (APIKey, error) {
	var (
		key       APIKey
		actor     string
		revokedAt *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, secret_hash, actor, created_at, revoked_at FROM api_keys WHERE id = $1`,
		id).Scan(&key.ID, &key.SecretHash, &actor, &key.CreatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return APIKey{}, shared.ErrInvalidCredentials
		}
		return APIKey{}, err
	}
	key.Actor = shared.Address(actor)
	key.RevokedAt = revokedAt
	return key, nil
}

// Revoke marks a key unusable from the given instant.
func (r *PGRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, at.UTC())
	return err
}

var _ Repository = (*PGRepository)(nil)

// MemoryRepository keeps keys in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	keys map[string]APIKey
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{keys: make(map[string]APIKey)}
}

func (r *MemoryRepository) Create(_ context.Context, key APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.ID] = key
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[id]
	if !ok {
		return APIKey{}, shared.ErrInvalidCredentials
	}
	return key, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.keys[id]
	if !ok {
		return shared.ErrInvalidCredentials
	}
	t := at
	key.RevokedAt = &t
	r.keys[id] = key
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
