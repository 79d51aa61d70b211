// Package domains resolves the domain identities a mirror run works with and
// decides which discovered URLs the crawler may fetch.
package domains

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var protocolPrefix = regexp.MustCompile(`(?i)^https?://`)

// Identity is a configured domain together with its protocol-stripped form.
type Identity struct {
	// Raw is the value as configured, e.g. "http://ghost.internal:2368".
	Raw string
	// Host is Raw without its leading http:// or https://, e.g. "ghost.internal:2368".
	Host string
}

// NewIdentity derives an Identity from a raw configured value. Trailing
// slashes are dropped so "http://a.test/" and "http://a.test" are the same
// identity.
func NewIdentity(raw string) Identity {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return Identity{}
	}
	return Identity{
		Raw:  raw,
		Host: protocolPrefix.ReplaceAllString(raw, ""),
	}
}

// IsZero reports whether the identity is absent.
func (i Identity) IsZero() bool {
	return i.Raw == ""
}

// ProtocolRelative returns the "//host" form of the identity.
func (i Identity) ProtocolRelative() string {
	if i.Host == "" {
		return ""
	}
	return "//" + i.Host
}

// AdminPrefix returns the Ghost admin interface prefix under this identity.
func (i Identity) AdminPrefix() string {
	return strings.TrimRight(i.Raw, "/") + "/ghost/"
}

// Config aggregates every domain identity of a mirror run. It is immutable
// once built and safe for concurrent use.
type Config struct {
	source     Identity
	alternates []Identity
	production Identity
	fetch      Identity
}

// Load builds a Config from raw configured values. Alternates are separated
// by whitespace or commas. An empty fetch value falls back to the source.
// Missing source or production values are logged but never fatal: the
// resulting Config is inert and accepts everything unchanged.
func Load(rawSource, rawAlternates, rawProduction, rawFetch string, logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := Config{
		source:     NewIdentity(rawSource),
		production: NewIdentity(rawProduction),
		fetch:      NewIdentity(rawFetch),
	}
	if cfg.fetch.IsZero() {
		cfg.fetch = cfg.source
	}
	cfg.alternates = parseAlternates(rawAlternates, cfg.source)

	if cfg.source.IsZero() {
		logger.Warn("source domain not configured; domain remapping disabled")
	}
	if cfg.production.IsZero() {
		logger.Warn("production domain not configured; domain remapping disabled")
	}
	if !cfg.Inert() {
		logger.Info("domain remapping enabled",
			zap.String("source", cfg.source.Raw),
			zap.String("production", cfg.production.Raw),
			zap.String("fetch", cfg.fetch.Raw),
			zap.Int("alternates", len(cfg.alternates)),
		)
	}
	return cfg
}

func parseAlternates(raw string, source Identity) []Identity {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	out := make([]Identity, 0, len(fields))
	seen := map[string]struct{}{source.Raw: {}}
	for _, f := range fields {
		id := NewIdentity(f)
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id.Raw]; ok {
			continue
		}
		seen[id.Raw] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Inert reports whether remapping is disabled because source or production
// is missing.
func (c Config) Inert() bool {
	return c.source.IsZero() || c.production.IsZero()
}

// Source returns the primary identity being mirrored.
func (c Config) Source() Identity { return c.source }

// Production returns the identity the mirror is served under.
func (c Config) Production() Identity { return c.production }

// Fetch returns the identity actually dialed to retrieve content.
func (c Config) Fetch() Identity { return c.fetch }

// Alternates returns a copy of the identities treated as equivalent to source.
func (c Config) Alternates() []Identity {
	return append([]Identity(nil), c.alternates...)
}

// SplitFetch reports whether content is dialed at an endpoint other than the source.
func (c Config) SplitFetch() bool {
	return c.fetch.Raw != c.source.Raw
}

// SourceLike lists every identity whose traces must be removed from mirrored
// content: the source, then each alternate, then the fetch endpoint when it
// differs from the source.
func (c Config) SourceLike() []Identity {
	if c.source.IsZero() {
		return nil
	}
	out := make([]Identity, 0, len(c.alternates)+2)
	out = append(out, c.source)
	out = append(out, c.alternates...)
	if c.SplitFetch() && !c.fetch.IsZero() && !containsIdentity(out, c.fetch) {
		out = append(out, c.fetch)
	}
	return out
}

func containsIdentity(ids []Identity, id Identity) bool {
	for _, existing := range ids {
		if existing.Raw == id.Raw {
			return true
		}
	}
	return false
}
