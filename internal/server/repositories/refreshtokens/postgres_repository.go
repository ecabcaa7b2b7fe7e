package refreshtokens

import (
	"context"
	"fmt"
	"time"

	"github.com/sonifoy/authsvc/internal/common"
	"github.com/sonifoy/authsvc/internal/dbx"
	"github.com/sonifoy/authsvc/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	query :=
		`INSERT INTO refresh_tokens (token, identity_id, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		token.Token, token.IdentityID, token.ExpiresAt, token.Revoked, token.CreatedAt,
	).Scan(&token.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			// A colliding 256-bit token means the random source is broken.
			return nil, fmt.Errorf("%w: refresh token collision", common.ErrStoreUnavailable)
		}
		return nil, fmt.Errorf("create refresh token: %w", dbx.Classify(err))
	}

	return token, nil
}

func (r *PostgresRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query :=
		`SELECT id, token, identity_id, expires_at, revoked, created_at
		 FROM refresh_tokens
		 WHERE token = $1`

	rt := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&rt.ID, &rt.Token, &rt.IdentityID, &rt.ExpiresAt, &rt.Revoked, &rt.CreatedAt,
	)
	if err != nil {
		return nil, dbx.Classify(err)
	}
	return rt, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	query :=
		`UPDATE refresh_tokens
		 SET revoked = TRUE
		 WHERE id = $1 AND revoked = FALSE AND expires_at > $2`

	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", dbx.Classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", dbx.Classify(err))
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	query :=
		`UPDATE refresh_tokens
		 SET revoked = TRUE
		 WHERE identity_id = $1 AND revoked = FALSE`

	res, err := r.db.ExecContext(ctx, query, identityID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", dbx.Classify(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", dbx.Classify(err))
	}
	return n, nil
}
