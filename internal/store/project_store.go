package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *PostgresStore) CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.Project, error) {
	key, err := generatePublicKey()
	if err != nil {
		return nil, fmt.Errorf("generating public key: %w", err)
	}

	var p domain.Project
	err = s.pool.QueryRow(ctx, `
		INSERT INTO projects (name, platform, public_key)
		VALUES ($1, $2, $3)
		RETURNING id, name, platform, public_key, created_at
	`, req.Name, req.Platform, key).Scan(
		&p.ID, &p.Name, &p.Platform, &p.PublicKey, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	var p domain.Project
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, platform, public_key, created_at
		FROM projects WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Platform, &p.PublicKey, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying project: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, platform, public_key, created_at
		FROM projects
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Platform, &p.PublicKey, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return projects, nil
}

// generatePublicKey returns the 32 hex character key used in project DSNs.
func generatePublicKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
