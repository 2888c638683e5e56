package resource

import (
	"time"

	"github.com/google/uuid"
)

// Session correlates every envelope produced by one scan.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

// NewSession creates a session for a single scan invocation.
func NewSession() Session {
	return Session{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
}
