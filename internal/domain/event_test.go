package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "critical", want: LevelCritical},
		{in: "fatal", want: LevelFatal},
		{in: "error", want: LevelError},
		{in: "ERROR", want: LevelError},
		{in: "warning", want: LevelWarning},
		{in: "warn", want: LevelWarning},
		{in: "Warn", want: LevelWarning},
		{in: "info", want: LevelInfo},
		{in: "debug", want: LevelDebug},
		{in: "notset", want: LevelNotSet},
		{in: "", wantErr: true},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevel_JSON(t *testing.T) {
	ev := Event{Level: LevelWarning, EventID: "0"}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Level != "warning" {
		t.Errorf("expected level %q, got %q", "warning", decoded.Level)
	}

	var back Event
	if err := json.Unmarshal([]byte(`{"level":"warn"}`), &back); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if back.Level != LevelWarning {
		t.Errorf("expected warn to decode as warning, got %s", back.Level)
	}
}

func TestParseLevels(t *testing.T) {
	levels, err := ParseLevels([]string{"error", "fatal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 2 || levels[0] != LevelError || levels[1] != LevelFatal {
		t.Errorf("unexpected levels: %v", levels)
	}

	if _, err := ParseLevels([]string{"error", "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestEvent_Message(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{name: "message", payload: map[string]any{"message": "disk full"}, want: "disk full"},
		{name: "logentry formatted", payload: map[string]any{"logentry": map[string]any{"formatted": "user 42 missing"}}, want: "user 42 missing"},
		{
			name: "exception",
			payload: map[string]any{"exception": map[string]any{"values": []any{
				map[string]any{"type": "KeyError", "value": "'a'"},
				map[string]any{"type": "ValueError", "value": "bad input"},
			}}},
			want: "ValueError: bad input",
		},
		{name: "empty", payload: map[string]any{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &Event{Payload: tt.payload}
			if got := ev.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProject_DSN(t *testing.T) {
	p := Project{ID: 42, PublicKey: "abc123"}
	if got := p.DSN("https", "relay.example.com"); got != "https://abc123@relay.example.com/42" {
		t.Errorf("unexpected DSN %q", got)
	}
}

func TestEvent_EncodeNotification(t *testing.T) {
	chat := "777"
	ev := &Event{
		Level:      LevelFatal,
		EventID:    "2",
		EnvelopeID: "env-1",
		Project:    Project{ID: 9, Name: "api", PublicKey: "secretkey"},
		Payload:    map[string]any{"message": "disk full"},
		Users:      []User{{Name: "carol", TelegramChatID: &chat}},
	}

	data, err := ev.EncodeNotification()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, leaked := range []string{"777", "carol", "secretkey", "users"} {
		if strings.Contains(string(data), leaked) {
			t.Errorf("notification contains %q: %s", leaked, data)
		}
	}

	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Level != LevelFatal || n.ProjectID != 9 || n.ProjectName != "api" || n.Message != "disk full" {
		t.Errorf("unexpected notification %+v", n)
	}

	full, err := ev.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(full), "777") {
		t.Error("queue encoding must keep recipients")
	}
}
