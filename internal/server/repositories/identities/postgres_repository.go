package identities

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sonifoy/authsvc/internal/common"
	"github.com/sonifoy/authsvc/internal/dbx"
	"github.com/sonifoy/authsvc/internal/server/models"
)

// Roles travel as a comma-joined string and are converted to TEXT[] in SQL,
// which keeps the queries driver-agnostic.
const selectColumns = `id, email, name, password_hash, profile_category, verified,
	verification_code, array_to_string(roles, ','), created_at, updated_at, last_login_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, identity *models.Identity) (*models.Identity, error) {
	query :=
		`INSERT INTO identities (email, name, password_hash, profile_category, verified,
			verification_code, roles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, string_to_array($7, ','), $8, $9)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		identity.Email, identity.Name, identity.PasswordHash, string(identity.ProfileCategory),
		identity.Verified, nullString(identity.VerificationCode), joinRoles(identity.Roles),
		identity.CreatedAt, identity.UpdatedAt,
	).Scan(&identity.ID)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", dbx.Classify(err))
	}

	return identity, nil
}

func (r *PostgresRepository) CreateIfAbsent(ctx context.Context, identity *models.Identity) (bool, error) {
	query :=
		`INSERT INTO identities (email, name, password_hash, profile_category, verified,
			verification_code, roles, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, string_to_array($7, ','), $8, $9)
		 ON CONFLICT (email) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		identity.Email, identity.Name, identity.PasswordHash, string(identity.ProfileCategory),
		identity.Verified, nullString(identity.VerificationCode), joinRoles(identity.Roles),
		identity.CreatedAt, identity.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("seed identity: %w", dbx.Classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("seed identity: %w", dbx.Classify(err))
	}
	return n > 0, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE id = $1`
	return r.findOne(ctx, query, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	query := `SELECT ` + selectColumns + ` FROM identities WHERE email = $1`
	return r.findOne(ctx, query, email)
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM identities WHERE email = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", dbx.Classify(err))
	}
	return exists, nil
}

func (r *PostgresRepository) Update(ctx context.Context, identity *models.Identity) error {
	query :=
		`UPDATE identities
		 SET email = $2, name = $3, password_hash = $4, profile_category = $5, verified = $6,
			verification_code = $7, roles = string_to_array($8, ','), updated_at = $9, last_login_at = $10
		 WHERE id = $1`

	var lastLogin sql.NullTime
	if identity.LastLoginAt != nil {
		lastLogin = sql.NullTime{Time: *identity.LastLoginAt, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, query,
		identity.ID, identity.Email, identity.Name, identity.PasswordHash, string(identity.ProfileCategory),
		identity.Verified, nullString(identity.VerificationCode), joinRoles(identity.Roles),
		identity.UpdatedAt, lastLogin,
	)
	if err != nil {
		return fmt.Errorf("update identity: %w", dbx.Classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity: %w", dbx.Classify(err))
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, id, code string, at time.Time) (bool, error) {
	query :=
		`UPDATE identities
		 SET verified = TRUE, verification_code = NULL, updated_at = $3
		 WHERE id = $1 AND verification_code = $2`

	res, err := r.db.ExecContext(ctx, query, id, code, at)
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", dbx.Classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark verified: %w", dbx.Classify(err))
	}
	return n == 1, nil
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE identities SET last_login_at = $2 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", dbx.Classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch last login: %w", dbx.Classify(err))
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*models.Identity, error) {
	var (
		identity  models.Identity
		category  string
		code      sql.NullString
		roles     string
		lastLogin sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&identity.ID, &identity.Email, &identity.Name, &identity.PasswordHash, &category,
		&identity.Verified, &code, &roles, &identity.CreatedAt, &identity.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, dbx.Classify(err)
	}

	identity.ProfileCategory = models.ProfileCategory(category)
	if code.Valid {
		identity.VerificationCode = &code.String
	}
	if lastLogin.Valid {
		identity.LastLoginAt = &lastLogin.Time
	}
	identity.Roles = splitRoles(roles)

	return &identity, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func joinRoles(roles []string) string {
	return strings.Join(models.NormalizeRoles(roles), ",")
}

func splitRoles(s string) []string {
	if s == "" {
		return []string{}
	}
	return models.NormalizeRoles(strings.Split(s, ","))
}
