package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Principal is the verified caller identity handed to every request by
// the access-token/scope verifier sitting in front of this service
// (§1: out of scope here — only its output is consumed).
type Principal struct {
	Gamespace uint64
	Account   uint64
	Scopes    []string
}

// HasScope reports whether the principal carries scope.
func (p Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authenticator verifies an inbound request and returns the caller's
// identity and scopes. Production deployments wrap the platform's
// shared access-token verifier; tests supply a stub.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

type principalKey struct{}

func contextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFromContext extracts the Principal installed by requireScopes.
func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// requireScopes authenticates the request and rejects it unless every
// scope in required is present on the caller's token (§6.1).
func (s *Server) requireScopes(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := s.auth.Authenticate(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			for _, scope := range required {
				if !principal.HasScope(scope) {
					writeError(w, http.StatusForbidden, errMissingScope(scope))
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(contextWithPrincipal(r.Context(), principal)))
		})
	}
}

type missingScopeError struct{ scope string }

func (e *missingScopeError) Error() string { return "missing required scope: " + e.scope }

func errMissingScope(scope string) error { return &missingScopeError{scope: scope} }

// HeaderAuthenticator trusts the caller identity forwarded by an
// upstream gateway that has already verified the access token, the
// same split the platform's Tornado handlers draw between token
// verification and the scoped() decorator (§1). It does no
// verification of its own — deployments that sit directly on the
// internet must front this service with something that sets these
// headers only after checking the token.
type HeaderAuthenticator struct {
	AccountHeader   string
	GamespaceHeader string
	ScopesHeader    string
}

// NewHeaderAuthenticator returns a HeaderAuthenticator using the
// platform's conventional header names.
func NewHeaderAuthenticator() HeaderAuthenticator {
	return HeaderAuthenticator{
		AccountHeader:   "X-Social-Account",
		GamespaceHeader: "X-Social-Gamespace",
		ScopesHeader:    "X-Social-Scopes",
	}
}

type unauthenticatedError struct{ reason string }

func (e *unauthenticatedError) Error() string { return "unauthenticated: " + e.reason }

func (a HeaderAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	accountRaw := r.Header.Get(a.AccountHeader)
	gamespaceRaw := r.Header.Get(a.GamespaceHeader)
	if accountRaw == "" || gamespaceRaw == "" {
		return Principal{}, &unauthenticatedError{reason: "missing caller identity headers"}
	}

	account, err := strconv.ParseUint(accountRaw, 10, 64)
	if err != nil {
		return Principal{}, &unauthenticatedError{reason: "malformed account header"}
	}
	gamespace, err := strconv.ParseUint(gamespaceRaw, 10, 64)
	if err != nil {
		return Principal{}, &unauthenticatedError{reason: "malformed gamespace header"}
	}

	var scopes []string
	if raw := r.Header.Get(a.ScopesHeader); raw != "" {
		scopes = strings.Split(raw, ",")
	}

	return Principal{Gamespace: gamespace, Account: account, Scopes: scopes}, nil
}
