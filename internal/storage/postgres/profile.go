package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/prefab-storefront/internal/domain/customer"
)

const getProfileSQL = `SELECT id::text, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(role, '')
	FROM profiles WHERE id = $1`

var _ customer.ProfileRepository = (*ProfileRepository)(nil)

// ProfileRepository reads the profiles table.
type ProfileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository returns a ProfileRepository that uses the given pool.
func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// GetByID returns customer.ErrProfileNotFound when the user has no row or id
// is not a uuid.
func (r *ProfileRepository) GetByID(ctx context.Context, id string) (*customer.Profile, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, customer.ErrProfileNotFound
	}
	var p customer.Profile
	err := r.pool.QueryRow(ctx, getProfileSQL, key).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile %q: %w", id, err)
	}
	return &p, nil
}
