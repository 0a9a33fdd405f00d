package api

import (
	"context"
	"crypto/subtle"
	"net"
	"strings"

	"urbanharvest/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// Ledger scopes an API client can be granted in api.keys.clients.
const (
	// ScopeCatalogRead covers the public catalog. Every verified client has
	// it, listed or not.
	ScopeCatalogRead = "catalog:read"
	// ScopeBookingsAdmin covers booking reads. They carry customer contact
	// details, so like GET /bookings over REST they need an explicit grant.
	ScopeBookingsAdmin = "bookings:admin"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	peerUnknown           = "unknown"
)

// scopeFor maps ledger methods to the scope they need. Methods of other
// services (health, reflection) need none.
func scopeFor(fullMethod string) (string, bool) {
	switch fullMethod {
	case methodListCatalog, methodGetCatalogItem:
		return ScopeCatalogRead, true
	case methodListBookings, methodGetBooking, methodUserBookings:
		return ScopeBookingsAdmin, true
	}
	if strings.HasPrefix(fullMethod, "/"+ledgerServiceName+"/") {
		// a ledger method nobody mapped stays closed
		return ScopeBookingsAdmin, true
	}
	return "", false
}

// apiCaller is a client whose key and extra header both matched.
type apiCaller struct {
	name   string
	scopes map[string]bool
}

func (c *apiCaller) has(scope string) bool {
	return scope == ScopeCatalogRead || c.scopes[scope]
}

// AuthInterceptor guards the gRPC ledger service. Back-office integrations
// identify with an API key pair; end users never reach gRPC.
type AuthInterceptor struct {
	enabled     bool
	keyHeader   string
	extraHeader string
	clients     map[string]apiClientEntry
	limiter     *rateLimiter
}

type apiClientEntry struct {
	extra  string
	caller *apiCaller
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	a := &AuthInterceptor{
		enabled:     cfg.Keys.Enabled,
		keyHeader:   headerName(cfg.Keys.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader: headerName(cfg.Keys.HeaderExtra, apiExtraHeaderDefault),
		clients:     make(map[string]apiClientEntry, len(cfg.Keys.Clients)),
		limiter:     newRateLimiter(cfg.RateLimit),
	}
	for _, k := range cfg.Keys.Clients {
		if k.Key == "" {
			continue
		}
		scopes := make(map[string]bool, len(k.Permissions))
		for _, p := range k.Permissions {
			scopes[strings.TrimSpace(p)] = true
		}
		name := k.Name
		if name == "" {
			name = "client-" + k.Key[:min(4, len(k.Key))]
		}
		a.clients[k.Key] = apiClientEntry{extra: k.Extra, caller: &apiCaller{name: name, scopes: scopes}}
	}
	return a
}

func headerName(configured, fallback string) string {
	if h := strings.ToLower(strings.TrimSpace(configured)); h != "" {
		return h
	}
	return fallback
}

// Unary authenticates, charges the caller's rate bucket, then checks the
// method's scope. Failed authentications are charged to the peer host so key
// guessing is throttled too.
func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		caller, authErr := a.authenticate(ctx)

		if !a.limiter.allow(a.limitKey(ctx, caller)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		if authErr != nil {
			return nil, authErr
		}
		if err := authorize(caller, info.FullMethod); err != nil {
			return nil, err
		}

		if caller != nil {
			tagClient(ctx, caller.name)
		}
		return handler(ctx, req)
	}
}

// authenticate returns nil, nil when API keys are switched off.
func (a *AuthInterceptor) authenticate(ctx context.Context) (*apiCaller, error) {
	if !a.enabled {
		return nil, nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	apiKey := first(md.Get(a.keyHeader))
	extra := first(md.Get(a.extraHeader))
	if apiKey == "" || extra == "" {
		return nil, status.Error(codes.Unauthenticated, "missing api key headers")
	}

	entry, ok := a.clients[apiKey]
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(entry.extra), []byte(extra)) != 1 {
		return nil, status.Error(codes.Unauthenticated, "invalid extra header")
	}
	return entry.caller, nil
}

// authorize lets anonymous callers (keys disabled) read the catalog only.
func authorize(caller *apiCaller, fullMethod string) error {
	scope, guarded := scopeFor(fullMethod)
	if !guarded {
		return nil
	}
	if caller == nil {
		if scope == ScopeCatalogRead {
			return nil
		}
		return status.Error(codes.PermissionDenied, "booking reads need an api key with "+ScopeBookingsAdmin)
	}
	if !caller.has(scope) {
		return status.Errorf(codes.PermissionDenied, "client %s lacks %s", caller.name, scope)
	}
	return nil
}

// limitKey is the verified client name, else the peer host. The port is
// dropped so reconnecting does not reset the bucket.
func (a *AuthInterceptor) limitKey(ctx context.Context, caller *apiCaller) string {
	if caller != nil {
		return "client:" + caller.name
	}
	return "peer:" + peerHost(ctx)
}

func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return peerUnknown
	}
	addr := p.Addr.String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
