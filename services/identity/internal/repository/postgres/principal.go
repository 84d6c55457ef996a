package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/database"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
)

// PrincipalRepository implements repository.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	db database.Beginner
}

// NewPrincipalRepository creates a new PostgreSQL-backed principal repository.
func NewPrincipalRepository(db database.Beginner) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

const selectPrincipal = `
		SELECT p.id, p.email, p.password_hash, p.first_name, p.last_name, p.phone,
		       p.is_active, p.email_verified, p.last_login_at, p.created_at, p.updated_at,
		       COALESCE(array_agg(pr.role_name ORDER BY pr.role_name) FILTER (WHERE pr.role_name IS NOT NULL), '{}') AS roles
		FROM principals p
		LEFT JOIN principal_roles pr ON pr.principal_id = p.id`

// Create inserts a principal and its role assignments in one transaction.
// The unique index on email settles concurrent registrations.
func (r *PrincipalRepository) Create(ctx context.Context, p *domain.Principal) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `
		INSERT INTO principals (id, email, password_hash, first_name, last_name, phone, is_active, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

		_, err := tx.Exec(ctx, query,
			p.ID,
			p.Email,
			p.PasswordHash,
			p.FirstName,
			p.LastName,
			p.Phone,
			p.IsActive,
			p.EmailVerified,
			p.CreatedAt,
			p.UpdatedAt,
		)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperrors.EmailExists(p.Email)
			}
			return fmt.Errorf("insert principal: %w", err)
		}

		for _, role := range p.Roles {
			_, err := tx.Exec(ctx,
				`INSERT INTO principal_roles (principal_id, role_name) VALUES ($1, $2)`,
				p.ID, role,
			)
			if err != nil {
				if database.IsForeignKeyViolation(err) {
					return apperrors.NotFound("role", role)
				}
				return fmt.Errorf("insert principal role: %w", err)
			}
		}
		return nil
	})
}

// GetByID retrieves a principal by its ID.
func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.scanPrincipal(ctx, selectPrincipal+`
		WHERE p.id = $1
		GROUP BY p.id`, id)
}

// GetByEmail retrieves a principal by email. The email is normalized first.
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	return r.scanPrincipal(ctx, selectPrincipal+`
		WHERE p.email = $1
		GROUP BY p.id`, domain.NormalizeEmail(email))
}

// EmailExists reports whether the normalized email is taken.
func (r *PrincipalRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM principals WHERE email = $1)`,
		domain.NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return exists, nil
}

// UpdatePassword replaces the password hash.
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.update(ctx, "update password",
		`UPDATE principals SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		passwordHash, id)
}

// SetActive sets the active flag.
func (r *PrincipalRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.update(ctx, "set active",
		`UPDATE principals SET is_active = $1, updated_at = NOW() WHERE id = $2`,
		active, id)
}

// SetVerified sets the email-verified flag.
func (r *PrincipalRepository) SetVerified(ctx context.Context, id string, verified bool) error {
	return r.update(ctx, "set verified",
		`UPDATE principals SET email_verified = $1, updated_at = NOW() WHERE id = $2`,
		verified, id)
}

// TouchLastLogin records the time of a successful login.
func (r *PrincipalRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "touch last login",
		`UPDATE principals SET last_login_at = $1 WHERE id = $2`,
		at, id)
}

func (r *PrincipalRepository) update(ctx context.Context, op, query string, value any, id string) error {
	ct, err := r.db.Exec(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("principal", id)
	}
	return nil
}

// scanPrincipal executes a query expected to return a single principal row.
func (r *PrincipalRepository) scanPrincipal(ctx context.Context, query string, args ...any) (*domain.Principal, error) {
	var p domain.Principal

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
		&p.IsActive,
		&p.EmailVerified,
		&p.LastLoginAt,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan principal: %w", err)
	}

	return &p, nil
}
