// Package domain contains entities without logic, just meta-data
package domain

import (
	"slices"
	"time"
)

type (
	SessionID string
	ClientID  string
)

// Session is one row of the session relation: the host plus the set of
// attached members. The host is never part of Members. Closing is set once
// teardown has begun; a closing session admits no joins.
type Session struct {
	ID        SessionID  `json:"sessionId"`
	Host      ClientID   `json:"host"`
	Members   []ClientID `json:"clientIds"`
	Version   int64      `json:"version"`
	Closing   bool       `json:"closing,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Has reports whether id is the host or an attached member.
func (s Session) Has(id ClientID) bool {
	return s.Host == id || slices.Contains(s.Members, id)
}

// Departures is everyone evicted when the session ends: host plus members.
func (s Session) Departures() []ClientID {
	out := make([]ClientID, 0, len(s.Members)+1)
	out = append(out, s.Host)
	return append(out, s.Members...)
}
