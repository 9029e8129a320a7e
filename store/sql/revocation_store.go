package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tenantquery/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Revocation records that a token id must no longer authenticate.
type Revocation struct {
	TokenID   string
	SubjectID string
	TenantID  string
	Reason    string
	RevokedAt time.Time
	ExpiresAt *time.Time
}

type Revoker interface {
	Revoke(ctx context.Context, revocation Revocation) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type RevocationOption func(*RevocationStore)

func WithRevocationNormalizer(normalizer *core.ErrorNormalizer) RevocationOption {
	return func(s *RevocationStore) {
		if normalizer != nil {
			s.classify = normalizer.Mapper(core.FamilyPostgres, core.FamilySQLite, core.FamilyMySQL)
		}
	}
}

func WithRevocationClock(now func() time.Time) RevocationOption {
	return func(s *RevocationStore) {
		if now != nil {
			s.now = now
		}
	}
}

type RevocationStore struct {
	db       *bun.DB
	repo     repository.Repository[*revocationRecord]
	classify core.ClassifyFunc
	now      func() time.Time
}

func NewRevocationStore(db *bun.DB, opts ...RevocationOption) (*RevocationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*revocationRecord](db, revocationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid revocation repository wiring: %w", err)
		}
	}
	store := &RevocationStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	if store.classify == nil {
		store.classify = NewNormalizer().Classify
	}
	return store, nil
}

// Revoke records the revocation. Revoking an already revoked token is a no-op.
func (s *RevocationStore) Revoke(ctx context.Context, revocation Revocation) error {
	tokenID := strings.TrimSpace(revocation.TokenID)
	if tokenID == "" {
		return core.NewError(core.KindValidation, core.CodeValidationFailed, "").WithDetail("token_id", "is required")
	}
	revoked, err := s.IsRevoked(ctx, tokenID)
	if err != nil {
		return err
	}
	if revoked {
		return nil
	}
	revokedAt := revocation.RevokedAt
	if revokedAt.IsZero() {
		revokedAt = s.now()
	}
	record := &revocationRecord{
		ID:        uuid.NewString(),
		TokenID:   tokenID,
		SubjectID: strings.TrimSpace(revocation.SubjectID),
		TenantID:  strings.TrimSpace(revocation.TenantID),
		Reason:    strings.TrimSpace(revocation.Reason),
		RevokedAt: revokedAt.UTC(),
		ExpiresAt: revocation.ExpiresAt,
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return false, nil
	}
	record := &revocationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.token_id = ?", tokenID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.classify(err)
	}
	return true, nil
}

// PurgeExpired deletes revocations whose token would have expired anyway.
func (s *RevocationStore) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := s.db.NewDelete().
		Model((*revocationRecord)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at < ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, s.classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, s.classify(err)
	}
	return affected, nil
}
