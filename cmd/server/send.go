package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Priya8975/envelope-relay/internal/domain"
	"github.com/Priya8975/envelope-relay/internal/envelope"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a test envelope to a relay",
	Example: `  relay send --project 1 --level error --message "disk full"
  relay send --project 1 --file envelope.bin --encoding gzip`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		baseURL, _ := cmd.Flags().GetString("url")
		project, _ := cmd.Flags().GetInt64("project")
		level, _ := cmd.Flags().GetString("level")
		message, _ := cmd.Flags().GetString("message")
		file, _ := cmd.Flags().GetString("file")
		encoding, _ := cmd.Flags().GetString("encoding")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if project <= 0 {
			return fmt.Errorf("--project is required")
		}

		var body []byte
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading envelope file: %w", err)
			}
			body = data
		} else {
			lvl, err := domain.ParseLevel(level)
			if err != nil {
				return err
			}
			env := buildEnvelope(lvl, message, time.Now().UTC())
			if body, err = envelope.Encode(env); err != nil {
				return err
			}
		}

		body, err := envelope.Compress(body, encoding)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		status, resp, err := postEnvelope(ctx, envelopeURL(baseURL, project), body, encoding)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", status, strings.TrimSpace(string(resp)))
		if status != http.StatusOK {
			return fmt.Errorf("relay rejected envelope with status %d", status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("url", "http://localhost:8080", "relay base URL")
	sendCmd.Flags().Int64("project", 0, "project id")
	sendCmd.Flags().String("level", "error", "event level")
	sendCmd.Flags().StringP("message", "m", "test event from relay send", "event message")
	sendCmd.Flags().String("file", "", "send a raw envelope file instead of a generated event")
	sendCmd.Flags().String("encoding", "", "content encoding: gzip, br, zstd or deflate")
	sendCmd.Flags().Duration("timeout", 10*time.Second, "request timeout")
}

// buildEnvelope returns a one-event envelope the way SDKs send it.
func buildEnvelope(level domain.Level, message string, now time.Time) *envelope.Envelope {
	eventID := strings.ReplaceAll(uuid.NewString(), "-", "")
	ts := now.Format(time.RFC3339Nano)

	payload, _ := json.Marshal(map[string]any{
		"event_id":  eventID,
		"level":     level.String(),
		"message":   message,
		"timestamp": ts,
		"platform":  "other",
	})

	return &envelope.Envelope{
		Headers: map[string]any{
			"event_id": eventID,
			"sent_at":  ts,
		},
		Items: []*envelope.Item{
			envelope.NewItem(map[string]any{
				"type":         "event",
				"content_type": "application/json",
			}, payload),
		},
	}
}

func envelopeURL(baseURL string, project int64) string {
	return fmt.Sprintf("%s/api/%d/envelope/", strings.TrimRight(baseURL, "/"), project)
}

func postEnvelope(ctx context.Context, url string, body []byte, encoding string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-sentry-envelope")
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("posting envelope: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}
