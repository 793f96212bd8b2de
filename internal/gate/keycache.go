package gate

import (
	"crypto/ed25519"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"skirmish/internal/identity"
	"skirmish/internal/telemetry"
)

const (
	keyCacheExpiry  = 5 * time.Minute
	keyCacheCleanup = 10 * time.Minute

	metricKeyCacheHits   = "gate_key_cache_hits"
	metricKeyCacheMisses = "gate_key_cache_misses"
	metricVerifyRejects  = "gate_verify_rejects"
)

// keyCache memoizes PEM decoding. Every inner wrapper repeats the sender's
// full public key, so a busy match parses the same handful of PEM blocks
// thousands of times per second without it.
type keyCache struct {
	parsed  *gocache.Cache
	metrics telemetry.Metrics
}

func newKeyCache(metrics telemetry.Metrics) *keyCache {
	return &keyCache{
		parsed:  gocache.New(keyCacheExpiry, keyCacheCleanup),
		metrics: metrics,
	}
}

func (c *keyCache) parse(pemText string) (ed25519.PublicKey, error) {
	if cached, ok := c.parsed.Get(pemText); ok {
		c.count(metricKeyCacheHits)
		return cached.(ed25519.PublicKey), nil
	}
	c.count(metricKeyCacheMisses)
	pub, err := identity.ParsePublicKeyPEM([]byte(pemText))
	if err != nil {
		return nil, err
	}
	c.parsed.Set(pemText, pub, gocache.DefaultExpiration)
	return pub, nil
}

func (c *keyCache) count(key string) {
	if c.metrics != nil {
		c.metrics.Add(key, 1)
	}
}
