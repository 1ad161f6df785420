package user

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// SQLStore implements Store using a database/sql connection.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (first_name, last_name, email, password_hash, role, profile_image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	email := strings.ToLower(strings.TrimSpace(u.Email))
	err := s.db.QueryRowContext(ctx, query, u.FirstName, u.LastName, email, u.PasswordHash,
		u.Role, u.ProfileImage, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return errors.Wrap(err, "insert user")
	}
	u.Email = email
	return nil
}

func (s *SQLStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, first_name, last_name, email, password_hash, role, profile_image, created_at
		FROM users
		WHERE email = $1
	`

	var u User
	row := s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email)))
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.Role, &u.ProfileImage, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "get user by email")
	}
	return &u, nil
}

func (s *SQLStore) GetProfiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query := `
		SELECT id, first_name, last_name, profile_image, role
		FROM users
		WHERE id = ANY($1)
	`

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "get profiles")
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &p.ProfileImage, &p.Role); err != nil {
			return nil, errors.Wrap(err, "scan profile")
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "get profiles")
	}
	return out, nil
}
