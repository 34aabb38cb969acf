package store

import (
	"context"
	"fmt"
)

// Stats holds aggregate counts over the stored data.
type Stats struct {
	Projects      int   `json:"projects"`
	Users         int   `json:"users"`
	Envelopes     int   `json:"envelopes"`
	Items         int   `json:"items"`
	EnvelopesLast int   `json:"envelopes_last_hour"`
	StoredBytes   int64 `json:"stored_bytes"`
}

// GetStats returns aggregate counts from the database.
func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats

	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM users)
	`).Scan(&st.Projects, &st.Users)
	if err != nil {
		return nil, fmt.Errorf("querying entity counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE created_at > NOW() - INTERVAL '1 hour'),
			COALESCE(SUM(octet_length(payload)), 0)
		FROM envelopes
	`).Scan(&st.Envelopes, &st.EnvelopesLast, &st.StoredBytes)
	if err != nil {
		return nil, fmt.Errorf("querying envelope counts: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM envelope_items`).Scan(&st.Items)
	if err != nil {
		return nil, fmt.Errorf("querying item count: %w", err)
	}

	return &st, nil
}
