package session

import "time"

// Session records one conversation between a user and a companion.
type Session struct {
	ID          string    `json:"id"`
	CompanionID string    `json:"companionId"`
	UserID      string    `json:"userId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Note is a single transcript line shown in the session notes viewer.
type Note struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
