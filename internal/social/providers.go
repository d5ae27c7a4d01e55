package social

import (
	"context"
	"time"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/config"
	"github.com/anthill-platform/anthill-social/internal/rpc"
	"github.com/anthill-platform/anthill-social/internal/tokens"
)

// baseProvider implements the parts of Provider common to every
// external credential: token import via the shared Token store
// (§4.4, mirrors the original's SocialAPI.import_data). Concrete
// providers embed it; those with a friends graph override
// HasFriendList and ListFriends.
//
// These are capability stubs: the actual outbound HTTP calls to each
// platform's API are an external collaborator out of scope here (§1);
// what's modeled is the uniform shape every provider must expose and
// how the aggregator drives it.
type baseProvider struct {
	credential string
	tokens     *tokens.Store
	login      rpc.LoginClient
	cfg        config.ProviderCredential
}

func (p *baseProvider) Type() string { return p.credential }

func (p *baseProvider) HasFriendList() bool { return false }

func (p *baseProvider) ListFriends(ctx context.Context, gamespace uint64, account uint64) (map[string]Friend, error) {
	return nil, apperrors.Internal(p.credential+" does not support listing friends", nil)
}

// privateKey resolves this credential's per-gamespace signing/verification
// key from the login service (§6.2, cached 300s by the client).
// ImportSocial fetches it so that a login-service failure fails the
// import, but does not check the auth payload against the key.
func (p *baseProvider) privateKey(ctx context.Context, gamespace uint64) (string, error) {
	if p.login == nil {
		return "", nil
	}
	return p.login.GetKey(ctx, gamespace, p.credential)
}

func (p *baseProvider) ImportSocial(ctx context.Context, gamespace uint64, username string, auth map[string]interface{}) error {
	if _, err := p.privateKey(ctx, gamespace); err != nil {
		return apperrors.Internal("failed to resolve "+p.credential+" signing key", err)
	}

	accessToken, _ := auth["access_token"].(string)
	var expiresAt *time.Time
	if expiresIn, ok := auth["expires_in"].(float64); ok && expiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(expiresIn) * time.Second)
		expiresAt = &t
	}

	_, err := p.tokens.UpdateToken(ctx, gamespace, p.credential, username, accessToken, expiresAt, auth)
	return err
}

func (p *baseProvider) GetSocialProfile(ctx context.Context, gamespace uint64, username string, account uint64) (map[string]interface{}, error) {
	token, err := p.tokens.GetCredential(ctx, gamespace, p.credential, username)
	if err != nil {
		return nil, err
	}
	if token.ExpiresAt != nil && token.ExpiresAt.Before(time.Now()) {
		return nil, apperrors.Unauthorized(p.credential, username)
	}
	return token.Payload, nil
}

// GoogleProvider has a friends graph (§9).
type GoogleProvider struct{ baseProvider }

func NewGoogleProvider(t *tokens.Store, login rpc.LoginClient, cfg config.ProviderCredential) *GoogleProvider {
	return &GoogleProvider{baseProvider{credential: "google", tokens: t, login: login, cfg: cfg}}
}
func (p *GoogleProvider) HasFriendList() bool { return true }
func (p *GoogleProvider) ListFriends(ctx context.Context, gamespace uint64, account uint64) (map[string]Friend, error) {
	return map[string]Friend{}, nil
}

// FacebookProvider has a friends graph restricted to players of the
// same game (§9).
type FacebookProvider struct{ baseProvider }

func NewFacebookProvider(t *tokens.Store, login rpc.LoginClient, cfg config.ProviderCredential) *FacebookProvider {
	return &FacebookProvider{baseProvider{credential: "facebook", tokens: t, login: login, cfg: cfg}}
}
func (p *FacebookProvider) HasFriendList() bool { return true }
func (p *FacebookProvider) ListFriends(ctx context.Context, gamespace uint64, account uint64) (map[string]Friend, error) {
	return map[string]Friend{}, nil
}

// VKProvider has a friends graph (§9).
type VKProvider struct{ baseProvider }

func NewVKProvider(t *tokens.Store, login rpc.LoginClient, cfg config.ProviderCredential) *VKProvider {
	return &VKProvider{baseProvider{credential: "vk", tokens: t, login: login, cfg: cfg}}
}
func (p *VKProvider) HasFriendList() bool { return true }
func (p *VKProvider) ListFriends(ctx context.Context, gamespace uint64, account uint64) (map[string]Friend, error) {
	return map[string]Friend{}, nil
}

// SteamProvider has no friends graph exposed via its API key auth flow
// (§9): has_friend_list is false, matching the original.
type SteamProvider struct{ baseProvider }

func NewSteamProvider(t *tokens.Store, login rpc.LoginClient, cfg config.ProviderCredential) *SteamProvider {
	return &SteamProvider{baseProvider{credential: "steam", tokens: t, login: login, cfg: cfg}}
}

// MailRuProvider has no friends graph (§9).
type MailRuProvider struct{ baseProvider }

func NewMailRuProvider(t *tokens.Store, login rpc.LoginClient, cfg config.ProviderCredential) *MailRuProvider {
	return &MailRuProvider{baseProvider{credential: "mailru", tokens: t, login: login, cfg: cfg}}
}
