package core

//go:generate mockery --name "IdentityResolver|ExpiryNotifier" --with-expecter --outpkg=mocks --output=./mocks

import (
	"context"

	"github.com/ghaditya/spotify-group-session/internal/domain"
)

// IdentityResolver turns a provider credential into a verified client id.
// Failures wrap domain.ErrAuth or domain.ErrUnimplemented.
type IdentityResolver interface {
	Resolve(ctx context.Context, proof domain.IdentityProof) (domain.ClientID, error)
}
