package logging

import "log/slog"

// Common field names.
const (
	FieldRequestID  = "request_id"
	FieldProjectID  = "project_id"
	FieldEnvelopeID = "envelope_id"
	FieldItemID     = "item_id"
	FieldSender     = "sender"
	FieldError      = "error"
)

func ProjectID(id int64) slog.Attr {
	return slog.Int64(FieldProjectID, id)
}

func EnvelopeID(id string) slog.Attr {
	return slog.String(FieldEnvelopeID, id)
}

func ItemID(id string) slog.Attr {
	return slog.String(FieldItemID, id)
}

func Sender(name string) slog.Attr {
	return slog.String(FieldSender, name)
}

// Error returns an error attribute. A nil error renders as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
