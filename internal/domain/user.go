package domain

import (
	"time"
)

type User struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	TelegramChatID *string   `json:"telegram_chat_id,omitempty"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreateUserRequest struct {
	Name           string  `json:"name"`
	Password       string  `json:"password"`
	TelegramChatID *string `json:"telegram_chat_id,omitempty"`
}

type UpdateUserRequest struct {
	Name           *string `json:"name,omitempty"`
	Password       *string `json:"password,omitempty"`
	TelegramChatID *string `json:"telegram_chat_id,omitempty"`
}
