package domain

import "time"

// Participant is one authenticated connection. A user with several tabs open
// has several participants sharing a UserID.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Username     string    `json:"username"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

func NewParticipant(connectionID, userID, username string) *Participant {
	return &Participant{
		ConnectionID: connectionID,
		UserID:       userID,
		Username:     username,
		ConnectedAt:  time.Now(),
	}
}

// Identity is a verified user assertion handed to the relay by the auth layer.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
