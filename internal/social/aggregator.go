package social

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
	"github.com/anthill-platform/anthill-social/internal/cache"
	"github.com/anthill-platform/anthill-social/internal/domain"
	"github.com/anthill-platform/anthill-social/internal/logging"
	"github.com/anthill-platform/anthill-social/internal/rpc"
	"github.com/anthill-platform/anthill-social/internal/tokens"
)

// connectionsLister is the subset of the Connection engine the
// aggregator needs, kept narrow to avoid an import cycle with
// internal/connections.
type connectionsLister interface {
	ListConnections(ctx context.Context, gamespace, account uint64) ([]uint64, error)
}

// Aggregator implements list_friends (§4.4): fan out across every
// linked credential that exposes a friends graph, union the result
// with internal connections, and decorate with public profiles.
type Aggregator struct {
	registry    *Registry
	tokens      *tokens.Store
	connections connectionsLister
	profiles    rpc.ProfileClient
	cache       *cache.TTLCache
	log         *logging.Logger
}

func NewAggregator(registry *Registry, tokenStore *tokens.Store, connections connectionsLister, profiles rpc.ProfileClient, friendsTTL time.Duration, log *logging.Logger) *Aggregator {
	return &Aggregator{
		registry:    registry,
		tokens:      tokenStore,
		connections: connections,
		profiles:    profiles,
		cache:       cache.New(friendsTTL),
		log:         log,
	}
}

// AccountFriends is one entry of the aggregated friends view: the
// credentials this friend is known under, plus their public profile.
type AccountFriends struct {
	Account     uint64                       `json:"account"`
	Credentials map[string]map[string]Friend `json:"credentials"`
	Profile     map[string]interface{}       `json:"profile,omitempty"`
}

// ListFriends implements the §4.4 aggregation pipeline:
//  1. list tokens for (gamespace, account)
//  2. fan out list_friends in parallel over every has_friend_list credential
//  3. map externals to platform accounts via lookup_accounts
//  4. union with internal connections
//  5. mass-fetch public profiles for the union
func (a *Aggregator) ListFriends(ctx context.Context, gamespace, account uint64, profileFields []string) ([]AccountFriends, error) {
	cacheKey := cache.HashKey("friends", strconv.FormatUint(gamespace, 10), strconv.FormatUint(account, 10), cache.FieldsKey(profileFields))
	if cached, ok := a.cache.Get(cacheKey); ok {
		return cached.([]AccountFriends), nil
	}

	accountTokens, err := a.tokens.ListTokens(ctx, gamespace, account)
	if err != nil && !apperrors.Is(err, apperrors.KindNotFound) {
		return nil, err
	}

	friendsByCredential, err := a.fanOutListFriends(ctx, gamespace, account, accountTokens)
	if err != nil {
		return nil, err
	}

	mergedCredentials := make([]string, 0)
	for credential, friends := range friendsByCredential {
		for username := range friends {
			mergedCredentials = append(mergedCredentials, credential+":"+username)
		}
	}

	credentialsToAccounts, err := a.tokens.LookupAccounts(ctx, gamespace, mergedCredentials)
	if err != nil {
		return nil, err
	}

	accountCredentials := make(map[uint64][]string)
	for mergedCredential, friendAccount := range credentialsToAccounts {
		accountCredentials[friendAccount] = append(accountCredentials[friendAccount], mergedCredential)
	}

	internalConnections, err := a.connections.ListConnections(ctx, gamespace, account)
	if err != nil {
		return nil, err
	}
	for _, other := range internalConnections {
		if _, ok := accountCredentials[other]; !ok {
			accountCredentials[other] = nil
		}
	}

	union := make([]uint64, 0, len(accountCredentials))
	for acc := range accountCredentials {
		union = append(union, acc)
	}

	var profiles map[uint64]map[string]interface{}
	if a.profiles != nil && len(union) > 0 {
		profiles, err = a.profiles.MassProfiles(ctx, gamespace, union, profileFields)
		if err != nil {
			return nil, err
		}
	}

	result := make([]AccountFriends, 0, len(union))
	for _, acc := range union {
		entry := AccountFriends{Account: acc, Credentials: map[string]map[string]Friend{}}
		for _, mergedCredential := range accountCredentials[acc] {
			credential, username := splitMergedCredential(mergedCredential)
			if entry.Credentials[credential] == nil {
				entry.Credentials[credential] = map[string]Friend{}
			}
			if friend, ok := friendsByCredential[credential][username]; ok {
				entry.Credentials[credential][username] = friend
			}
		}
		if profiles != nil {
			entry.Profile = profiles[acc]
		}
		result = append(result, entry)
	}

	a.cache.Set(cacheKey, result)
	return result, nil
}

// fanOutListFriends invokes ListFriends concurrently across every
// has_friend_list credential the account has tokens for, swallowing
// per-provider API errors so one bad provider never fails the whole
// aggregation (§4.4 step 2).
func (a *Aggregator) fanOutListFriends(ctx context.Context, gamespace, account uint64, accountTokens []*domain.Token) (map[string]map[string]Friend, error) {
	credentials := make([]string, 0, len(accountTokens))
	for _, t := range accountTokens {
		credentials = append(credentials, t.Credential)
	}

	results := make(map[string]map[string]Friend, len(credentials))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, credential := range credentials {
		provider, ok := a.registry.Get(credential)
		if !ok || !provider.HasFriendList() {
			continue
		}
		credential := credential
		provider := provider
		group.Go(func() error {
			friends, err := provider.ListFriends(groupCtx, gamespace, account)
			if err != nil {
				if a.log != nil {
					a.log.WithField("credential", credential).WithField("error", err).Warn("provider list_friends failed")
				}
				return nil // per-credential errors are swallowed, not fatal (§4.4)
			}
			mu.Lock()
			results[credential] = friends
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, apperrors.Internal("failed to fan out list_friends", err)
	}
	return results, nil
}

func splitMergedCredential(mergedCredential string) (credential, username string) {
	for i := 0; i < len(mergedCredential); i++ {
		if mergedCredential[i] == ':' {
			return mergedCredential[:i], mergedCredential[i+1:]
		}
	}
	return mergedCredential, ""
}
