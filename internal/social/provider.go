// Package social implements the external credential provider registry
// and the friends-list aggregator that fans out across them (§4.4).
package social

import (
	"context"
)

// Friend is one external friend entry as reported by a provider,
// keyed by the provider's own username for that person (§4.4).
type Friend struct {
	Username string
	Payload  map[string]interface{}
}

// Provider is the uniform capability set every external credential
// exposes (§4.4): list_friends is optional (gated by HasFriendList),
// the rest are mandatory.
type Provider interface {
	Type() string
	HasFriendList() bool
	ListFriends(ctx context.Context, gamespace uint64, account uint64) (map[string]Friend, error)
	GetSocialProfile(ctx context.Context, gamespace uint64, username string, account uint64) (map[string]interface{}, error)
	ImportSocial(ctx context.Context, gamespace uint64, username string, auth map[string]interface{}) error
}

// Registry is the dispatch table of providers keyed by credential
// name (§4.4, §9 — google/facebook/steam/vk/mailru in the original).
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.providers[p.Type()] = p
}

func (r *Registry) Get(credential string) (Provider, bool) {
	p, ok := r.providers[credential]
	return p, ok
}

func (r *Registry) All() map[string]Provider {
	return r.providers
}
