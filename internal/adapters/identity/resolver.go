package identity

import (
	"context"
	"fmt"

	"github.com/ghaditya/spotify-group-session/internal/core"
	"github.com/ghaditya/spotify-group-session/internal/domain"
)

// AppleMusic has no integration yet; every call fails the same way.
type AppleMusic struct{}

func (AppleMusic) Resolve(context.Context, domain.IdentityProof) (domain.ClientID, error) {
	return "", domain.ErrProviderNotImplemented
}

// Resolver dispatches to the provider named by the proof's client type.
type Resolver struct {
	providers map[domain.ClientType]core.IdentityResolver
}

var _ core.IdentityResolver = (*Resolver)(nil)

func NewResolver(spotify core.IdentityResolver) *Resolver {
	return &Resolver{providers: map[domain.ClientType]core.IdentityResolver{
		domain.ClientSpotify:    spotify,
		domain.ClientAppleMusic: AppleMusic{},
	}}
}

func (r *Resolver) Resolve(ctx context.Context, proof domain.IdentityProof) (domain.ClientID, error) {
	p, ok := r.providers[proof.Type]
	if !ok {
		return "", fmt.Errorf("%w: unknown client type %d", domain.ErrValidation, int(proof.Type))
	}
	return p.Resolve(ctx, proof)
}
