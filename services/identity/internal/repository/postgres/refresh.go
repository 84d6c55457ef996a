package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/database"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
)

// RefreshLedger implements repository.RefreshLedger using PostgreSQL.
// Liveness is always judged by the database clock so that every instance
// agrees on expiry.
type RefreshLedger struct {
	db  database.Beginner
	now func() time.Time
}

// NewRefreshLedger creates a new PostgreSQL-backed refresh ledger.
func NewRefreshLedger(db database.Beginner) *RefreshLedger {
	return &RefreshLedger{db: db, now: time.Now}
}

const insertRefresh = `
		INSERT INTO refresh_tokens (id, principal_id, token_hash, jti, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6)`

// Record stores a newly issued refresh credential.
func (l *RefreshLedger) Record(ctx context.Context, grant domain.RefreshGrant) (entry *domain.RefreshToken, err error) {
	ctx, end := database.TraceQuery(ctx, "RecordRefreshToken", insertRefresh)
	defer func() { end(err) }()

	return l.insert(ctx, l.db, uuid.NewString(), grant)
}

func (l *RefreshLedger) insert(ctx context.Context, db database.DBTX, id string, grant domain.RefreshGrant) (*domain.RefreshToken, error) {
	entry := &domain.RefreshToken{
		ID:          id,
		PrincipalID: grant.PrincipalID,
		TokenHash:   domain.HashToken(grant.Token),
		TokenID:     grant.TokenID,
		ExpiresAt:   grant.ExpiresAt.UTC(),
		CreatedAt:   l.now().UTC(),
	}

	_, err := db.Exec(ctx, insertRefresh,
		entry.ID,
		entry.PrincipalID,
		entry.TokenHash,
		entry.TokenID,
		entry.ExpiresAt,
		entry.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("refresh token already recorded")
		}
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return entry, nil
}

// FindByToken returns the entry for a credential in any state.
func (l *RefreshLedger) FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, principal_id, token_hash, jti, expires_at, revoked, revoked_at, replaced_by, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	var t domain.RefreshToken
	err := l.db.QueryRow(ctx, query, domain.HashToken(token)).Scan(
		&t.ID,
		&t.PrincipalID,
		&t.TokenHash,
		&t.TokenID,
		&t.ExpiresAt,
		&t.Revoked,
		&t.RevokedAt,
		&t.ReplacedBy,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}

// IsValid reports whether the entry exists, is not revoked and expires
// strictly in the future.
func (l *RefreshLedger) IsValid(ctx context.Context, token string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM refresh_tokens
			WHERE token_hash = $1 AND revoked = false AND expires_at > NOW()
		)`

	var ok bool
	if err := l.db.QueryRow(ctx, query, domain.HashToken(token)).Scan(&ok); err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return ok, nil
}

// Revoke marks the entry revoked. An already revoked entry keeps its
// original revoked_at. An unknown token is NOT_FOUND.
func (l *RefreshLedger) Revoke(ctx context.Context, token string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = COALESCE(revoked_at, NOW())
		WHERE token_hash = $1`

	ct, err := l.db.Exec(ctx, query, domain.HashToken(token))
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// RevokeAllForPrincipal revokes every live entry of a principal.
func (l *RefreshLedger) RevokeAllForPrincipal(ctx context.Context, principalID string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = NOW()
		WHERE principal_id = $1 AND revoked = false`

	ct, err := l.db.Exec(ctx, query, principalID)
	if err != nil {
		return 0, fmt.Errorf("revoke principal refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Rotate revokes the presented entry and records next in one transaction.
// The conditional update is the race arbiter: of two rotations presenting
// the same credential only one sees a row, the other gets TOKEN_REVOKED.
// Any failure rolls back, leaving the presented credential live.
func (l *RefreshLedger) Rotate(ctx context.Context, presented string, next domain.RefreshGrant) (entry *domain.RefreshToken, err error) {
	revokeQuery := `
		UPDATE refresh_tokens
		SET revoked = true, revoked_at = NOW(), replaced_by = $3
		WHERE token_hash = $1 AND principal_id = $2 AND revoked = false AND expires_at > NOW()`

	ctx, end := database.TraceQuery(ctx, "RotateRefreshToken", revokeQuery)
	defer func() { end(err) }()

	nextID := uuid.NewString()
	err = database.WithTx(ctx, l.db, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, revokeQuery, domain.HashToken(presented), next.PrincipalID, nextID)
		if err != nil {
			return fmt.Errorf("revoke presented refresh token: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return apperrors.TokenRevoked()
		}

		entry, err = l.insert(ctx, tx, nextID, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PurgeExpired hard-deletes entries whose expiry has passed.
func (l *RefreshLedger) PurgeExpired(ctx context.Context) (int64, error) {
	ct, err := l.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purge expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

// ListActive returns a page of live entries for a principal, newest first.
func (l *RefreshLedger) ListActive(ctx context.Context, principalID string, limit, offset int) ([]domain.RefreshToken, int, error) {
	var total int
	err := l.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE principal_id = $1 AND revoked = false AND expires_at > NOW()`,
		principalID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count active refresh tokens: %w", err)
	}

	query := `
		SELECT id, principal_id, jti, expires_at, created_at
		FROM refresh_tokens
		WHERE principal_id = $1 AND revoked = false AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := l.db.Query(ctx, query, principalID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query active refresh tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.RefreshToken
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.ID, &t.PrincipalID, &t.TokenID, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan active refresh token: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate active refresh tokens: %w", err)
	}
	return out, total, nil
}
