package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pifp-labs/pifp-ledger/internal/shared"
)

// Service wraps API-key issuance and verification rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Issue mints a credential for the given actor and returns the plaintext
// token in the form "<id>.<secret>". The secret is never stored.
func (s *Service) Issue(ctx context.Context, actor shared.Address) (string, error) {
	id, err := randomHex(8)
	if err != nil {
		return "", fmt.Errorf("auth: issue id: %w", err)
	}
	secret, err := randomHex(24)
	if err != nil {
		return "", fmt.Errorf("auth: issue secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	key := APIKey{
		ID:         id,
		SecretHash: string(hash),
		Actor:      actor,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, key); err != nil {
		return "", fmt.Errorf("auth: store key: %w", err)
	}
	return id + "." + secret, nil
}

// Verify validates a presented token and resolves the acting address.
func (s *Service) Verify(ctx context.Context, token string) (shared.Address, error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return "", shared.ErrInvalidCredentials
	}
	key, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", shared.ErrInvalidCredentials
	}
	if !key.Active() {
		return "", shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return "", shared.ErrInvalidCredentials
	}
	return key.Actor, nil
}

// Revoke disables the key with the given identifier.
func (s *Service) Revoke(ctx context.Context, id string) error {
	return s.repo.Revoke(ctx, id, s.now().UTC())
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
