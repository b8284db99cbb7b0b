package domain

import "time"

// Credential holds provider tokens carried for downstream API calls.
// It is opaque to the membership engine and never serialized to callers.
type Credential struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
}

// Member is one row of the member relation. It exists only while the
// client is attached to SessionID.
type Member struct {
	ClientID   ClientID   `json:"clientId"`
	SessionID  SessionID  `json:"sessionId"`
	IsHost     bool       `json:"host"`
	ClientType ClientType `json:"clientType"`
	Credential Credential `json:"-"`
	JoinedAt   time.Time  `json:"joinedAt"`
}
