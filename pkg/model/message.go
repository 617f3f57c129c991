package model

import (
	"errors"
	"strings"
	"time"
)

var ErrMessageBodyEmpty = errors.New("message body cannot be empty")

// Message is an archived chat line.
type Message struct {
	ID        int64     `json:"id"`
	Node      string    `json:"node"`
	Username  string    `json:"username"`
	IP        string    `json:"ip"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.Body) == "" {
		return ErrMessageBodyEmpty
	}
	return nil
}

type MessageFilters struct {
	LimitToNode     *string
	LimitToUsername *string
	PageSize        *int64
	Offset          *int64
}
