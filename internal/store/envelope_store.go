package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/jackc/pgx/v5"
)

const defaultListLimit = 50

// CreateEnvelope inserts the envelope and all of its items in one
// transaction. The returned record carries the generated ids.
func (s *PostgresStore) CreateEnvelope(ctx context.Context, env *domain.Envelope) (*domain.Envelope, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stored := *env
	err = tx.QueryRow(ctx, `
		INSERT INTO envelopes (project_id, payload, event_id, sent_at, dsn)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, env.ProjectID, env.Payload, env.EventID, env.SentAt, env.DSN).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting envelope: %w", err)
	}

	stored.Items = make([]domain.EnvelopeItem, len(env.Items))
	if len(env.Items) > 0 {
		batch := &pgx.Batch{}
		for _, item := range env.Items {
			batch.Queue(`
				INSERT INTO envelope_items (envelope_id, item_id, item_type, content_type, payload)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id, created_at
			`, stored.ID, item.ItemID, item.Type, item.ContentType, item.Payload)
		}

		results := tx.SendBatch(ctx, batch)
		for i, item := range env.Items {
			item.EnvelopeID = stored.ID
			if err := results.QueryRow().Scan(&item.ID, &item.CreatedAt); err != nil {
				results.Close()
				return nil, fmt.Errorf("inserting envelope item %s: %w", item.ItemID, err)
			}
			stored.Items[i] = item
		}
		if err := results.Close(); err != nil {
			return nil, fmt.Errorf("closing item batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return &stored, nil
}

// GetEnvelope returns the envelope with its items, or nil when it does not
// exist.
func (s *PostgresStore) GetEnvelope(ctx context.Context, id string) (*domain.Envelope, error) {
	var env domain.Envelope
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, payload, event_id, sent_at, dsn, octet_length(payload), created_at
		FROM envelopes WHERE id = $1
	`, id).Scan(&env.ID, &env.ProjectID, &env.Payload, &env.EventID, &env.SentAt, &env.DSN, &env.Size, &env.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying envelope: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, envelope_id, item_id, item_type, content_type, payload, created_at
		FROM envelope_items
		WHERE envelope_id = $1
		ORDER BY item_id::int
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying envelope items: %w", err)
	}
	defer rows.Close()

	env.Items = []domain.EnvelopeItem{}
	for rows.Next() {
		var item domain.EnvelopeItem
		if err := rows.Scan(&item.ID, &item.EnvelopeID, &item.ItemID, &item.Type, &item.ContentType, &item.Payload, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning envelope item: %w", err)
		}
		env.Items = append(env.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating envelope items: %w", err)
	}
	return &env, nil
}

// ListEnvelopes returns envelope summaries, newest first, without payloads
// or items.
func (s *PostgresStore) ListEnvelopes(ctx context.Context, filter domain.EnvelopeFilter) ([]domain.Envelope, error) {
	query, args := buildEnvelopeListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying envelopes: %w", err)
	}
	defer rows.Close()

	envelopes := []domain.Envelope{}
	for rows.Next() {
		var e domain.Envelope
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.EventID, &e.SentAt, &e.DSN, &e.Size, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning envelope: %w", err)
		}
		envelopes = append(envelopes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating envelopes: %w", err)
	}
	return envelopes, nil
}

func buildEnvelopeListQuery(filter domain.EnvelopeFilter) (string, []any) {
	query := `SELECT id, project_id, event_id, sent_at, dsn, octet_length(payload), created_at FROM envelopes`
	var args []any

	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		query += fmt.Sprintf(" WHERE project_id = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}
