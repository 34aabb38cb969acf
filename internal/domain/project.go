package domain

import (
	"fmt"
	"time"
)

type Project struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Platform  string    `json:"platform"`
	PublicKey string    `json:"public_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DSN builds the client key URL an SDK is configured with, e.g.
// https://<key>@relay.example.com/42.
func (p Project) DSN(scheme, host string) string {
	return fmt.Sprintf("%s://%s@%s/%d", scheme, p.PublicKey, host, p.ID)
}

type CreateProjectRequest struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

type ProjectResponse struct {
	Project
	DSN string `json:"dsn"`
}
