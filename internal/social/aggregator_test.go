package social

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anthill-platform/anthill-social/internal/domain"
)

type stubProvider struct {
	credential     string
	hasFriendList  bool
	friends        map[string]Friend
	err            error
}

func (p *stubProvider) Type() string         { return p.credential }
func (p *stubProvider) HasFriendList() bool  { return p.hasFriendList }
func (p *stubProvider) ListFriends(ctx context.Context, gamespace, account uint64) (map[string]Friend, error) {
	return p.friends, p.err
}
func (p *stubProvider) GetSocialProfile(ctx context.Context, gamespace uint64, username string, account uint64) (map[string]interface{}, error) {
	return nil, nil
}
func (p *stubProvider) ImportSocial(ctx context.Context, gamespace uint64, username string, auth map[string]interface{}) error {
	return nil
}

type stubConnections struct {
	accounts []uint64
}

func (s *stubConnections) ListConnections(ctx context.Context, gamespace, account uint64) ([]uint64, error) {
	return s.accounts, nil
}

func TestFanOutSkipsProvidersWithoutFriendList(t *testing.T) {
	registry := NewRegistry(
		&stubProvider{credential: "google", hasFriendList: true, friends: map[string]Friend{"g1": {Username: "g1"}}},
		&stubProvider{credential: "steam", hasFriendList: false},
	)
	agg := &Aggregator{registry: registry}

	tokens := []*domain.Token{
		{Credential: "google", Username: "u1"},
		{Credential: "steam", Username: "u2"},
	}

	results, err := agg.fanOutListFriends(context.Background(), 1, 10, tokens)
	require.NoError(t, err)
	require.Contains(t, results, "google")
	require.NotContains(t, results, "steam")
}

func TestFanOutSwallowsPerProviderErrors(t *testing.T) {
	registry := NewRegistry(
		&stubProvider{credential: "google", hasFriendList: true, err: errors.New("provider unavailable"), friends: nil},
	)
	agg := &Aggregator{registry: registry}

	tokens := []*domain.Token{{Credential: "google", Username: "u1"}}

	results, err := agg.fanOutListFriends(context.Background(), 1, 10, tokens)
	require.NoError(t, err)
	require.NotContains(t, results, "google")
}
