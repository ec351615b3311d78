package clerk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// WellKnownJWKSPath is stripped from a key-set URI to derive the issuer.
const WellKnownJWKSPath = "/.well-known/jwks.json"

// maxJWKSBytes bounds the key-set response body.
const maxJWKSBytes = 1 << 20

var (
	// ErrKeyNotFound is returned when no public key is known for a key id
	ErrKeyNotFound = errors.New("signing key not found")

	// ErrJWKSFetchFailed is returned when the key set cannot be downloaded or parsed
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")
)

// KeyResolver maps a key id to the public key that verifies its signatures.
type KeyResolver interface {
	Resolve(ctx context.Context, kid string) (any, error)
}

type cachedKey struct {
	key       any
	fetchedAt time.Time
}

// JWKSResolver fetches an issuer's published key set and caches keys by id
// for the life of the process. A miss triggers a refetch of the whole set;
// concurrent misses share one request.
type JWKSResolver struct {
	jwksURI    string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	keys  map[string]cachedKey
	fetch singleflight.Group
	now   func() time.Time
}

// NewJWKSResolver creates a resolver for jwksURI. An empty URI yields a
// resolver that always reports ErrKeyNotFound.
func NewJWKSResolver(jwksURI string, httpTimeout time.Duration, logger *zap.Logger) *JWKSResolver {
	if httpTimeout == 0 {
		httpTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JWKSResolver{
		jwksURI:    jwksURI,
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     logger,
		keys:       make(map[string]cachedKey),
		now:        time.Now,
	}
}

// Configured reports whether an endpoint is set
func (r *JWKSResolver) Configured() bool {
	return r.jwksURI != ""
}

// Issuer returns the issuer expected in tokens signed by this key set
func (r *JWKSResolver) Issuer() string {
	return IssuerFromJWKSURI(r.jwksURI)
}

// IssuerFromJWKSURI removes the well-known suffix from a key-set URI.
func IssuerFromJWKSURI(uri string) string {
	return strings.TrimSuffix(uri, WellKnownJWKSPath)
}

// Resolve returns the public key for kid, fetching the key set on a miss.
func (r *JWKSResolver) Resolve(ctx context.Context, kid string) (any, error) {
	if key, ok := r.cached(kid); ok {
		return key, nil
	}
	if !r.Configured() {
		return nil, fmt.Errorf("%w: no key set endpoint configured", ErrKeyNotFound)
	}

	// Waiters share the result, so one caller's cancellation must not fail the rest.
	fetchCtx := context.WithoutCancel(ctx)
	if _, err, _ := r.fetch.Do(r.jwksURI, func() (interface{}, error) {
		return nil, r.refresh(fetchCtx)
	}); err != nil {
		r.logger.Warn("JWKS refresh failed", zap.String("kid", kid), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrKeyNotFound, err)
	}

	if key, ok := r.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %s not in key set", ErrKeyNotFound, kid)
}

// CachedKeys returns the number of keys held in the cache
func (r *JWKSResolver) CachedKeys() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// FetchedAt returns when the key for kid entered the cache
func (r *JWKSResolver) FetchedAt(kid string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.keys[kid]
	return entry.fetchedAt, ok
}

func (r *JWKSResolver) cached(kid string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.keys[kid]
	return entry.key, ok
}

// refresh downloads the key set and adds every usable key to the cache.
// Existing entries are kept so a key rotated out remotely stays valid
// until the process restarts.
func (r *JWKSResolver) refresh(ctx context.Context) error {
	set, err := r.FetchKeySet(ctx)
	if err != nil {
		return err
	}

	fetchedAt := r.now()
	added := 0
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		kid, ok := key.KeyID()
		if !ok || kid == "" {
			continue
		}
		var raw interface{}
		if err := jwk.Export(key, &raw); err != nil {
			r.logger.Debug("skipping unusable JWK", zap.String("kid", kid), zap.Error(err))
			continue
		}
		r.mu.Lock()
		r.keys[kid] = cachedKey{key: raw, fetchedAt: fetchedAt}
		r.mu.Unlock()
		added++
	}

	r.logger.Debug("JWKS refreshed", zap.Int("keys", added))
	return nil
}

// FetchKeySet downloads and parses the key set
func (r *JWKSResolver) FetchKeySet(ctx context.Context) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}

	set, err := jwk.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}
	return set, nil
}
