package domains

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewIdentityStripsProtocol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		host string
	}{
		{"http://a.test", "a.test"},
		{"HTTPS://B.test", "B.test"},
		{"https://ghost.internal:2368", "ghost.internal:2368"},
		{"  http://padded.test  ", "padded.test"},
		{"bare.test", "bare.test"},
	}
	for _, tt := range tests {
		id := NewIdentity(tt.raw)
		assert.Equal(t, tt.host, id.Host, tt.raw)
		assert.False(t, id.IsZero())
	}
	assert.True(t, NewIdentity("   ").IsZero())
	assert.True(t, NewIdentity("/").IsZero())
	assert.Equal(t, "", NewIdentity("").ProtocolRelative())
}

func TestNewIdentityDropsTrailingSlash(t *testing.T) {
	t.Parallel()

	id := NewIdentity("http://a.test/")
	assert.Equal(t, "http://a.test", id.Raw)
	assert.Equal(t, "a.test", id.Host)
	assert.Equal(t, "//a.test", id.ProtocolRelative())
	assert.Equal(t, NewIdentity("http://a.test"), NewIdentity(" http://a.test// "))

	cfg := Load("http://a.test/", "", "https://b.test", "", nil)
	v := cfg.Decide("https://b.test/post/")
	assert.Equal(t, Redirect, v.Kind)
	assert.Equal(t, "http://a.test/post/", v.Target)
}

func TestIdentityAdminPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://a.test/ghost/", NewIdentity("http://a.test/").AdminPrefix())
	assert.Equal(t, "http://a.test/ghost/", NewIdentity("http://a.test").AdminPrefix())
	assert.Equal(t, "//a.test:2368", NewIdentity("http://a.test:2368").ProtocolRelative())
}

func TestLoadDefaultsFetchToSource(t *testing.T) {
	t.Parallel()

	cfg := Load("http://a.test", "", "https://b.test", "", nil)
	assert.False(t, cfg.Inert())
	assert.False(t, cfg.SplitFetch())
	assert.Equal(t, cfg.Source(), cfg.Fetch())
}

func TestLoadParsesAlternates(t *testing.T) {
	t.Parallel()

	cfg := Load("http://a.test", " https://alt1.test\thttp://alt2.test,http://alt1.test  https://alt1.test http://a.test ", "https://b.test", "", nil)
	alts := cfg.Alternates()
	require.Len(t, alts, 3)
	assert.Equal(t, "https://alt1.test", alts[0].Raw)
	assert.Equal(t, "http://alt2.test", alts[1].Raw)
	assert.Equal(t, "http://alt1.test", alts[2].Raw)

	alts[0] = Identity{}
	assert.Equal(t, "https://alt1.test", cfg.Alternates()[0].Raw, "Alternates must return a copy")
}

func TestLoadWarnsOnMissingValues(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	cfg := Load("", "", "", "", zap.New(core))

	assert.True(t, cfg.Inert())
	assert.Nil(t, cfg.SourceLike())
	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Message, "source domain")
	assert.Contains(t, warnings[1].Message, "production domain")
}

func TestLoadLogsRemapWhenComplete(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	Load("http://a.test", "", "https://b.test", "http://internal:2368", zap.New(core))

	entries := logs.FilterMessage("domain remapping enabled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "http://internal:2368", entries[0].ContextMap()["fetch"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestSourceLikeOrder(t *testing.T) {
	t.Parallel()

	cfg := Load("http://a.test", "https://alt.test", "https://b.test", "http://internal:2368", nil)
	ids := cfg.SourceLike()
	require.Len(t, ids, 3)
	assert.Equal(t, "http://a.test", ids[0].Raw)
	assert.Equal(t, "https://alt.test", ids[1].Raw)
	assert.Equal(t, "http://internal:2368", ids[2].Raw)

	sameFetch := Load("http://a.test", "https://alt.test", "https://b.test", "", nil)
	assert.Len(t, sameFetch.SourceLike(), 2)
}
