package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/albertomaydayjhondoe/Lotto-sub001/internal/domain"
)

func (r *DecisionRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id, email, username, password_hash, role, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	var scopesJSON []byte
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &scopesJSON, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // 404 решается в хендлере
		}
		return nil, err
	}

	_ = json.Unmarshal(scopesJSON, &u.Scopes)
	return u, nil
}
