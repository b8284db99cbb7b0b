package domain

import "fmt"

// ClientType names the identity provider a caller authenticated with.
// Values match the wire encoding used by existing clients.
type ClientType int

const (
	ClientSpotify ClientType = iota
	ClientAppleMusic
)

func (t ClientType) String() string {
	switch t {
	case ClientSpotify:
		return "spotify"
	case ClientAppleMusic:
		return "apple_music"
	default:
		return fmt.Sprintf("client_type(%d)", int(t))
	}
}

// IdentityProof is what a caller presents to be resolved to a ClientID.
type IdentityProof struct {
	Type       ClientType
	Credential Credential
}
