package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/domains"
)

type fakeResponse struct {
	url         string
	contentType string
	body        []byte
	replaced    int
	before      []byte
}

func (f *fakeResponse) URL() string         { return f.url }
func (f *fakeResponse) ContentType() string { return f.contentType }
func (f *fakeResponse) Body() []byte        { return f.body }

func (f *fakeResponse) ReplaceBody(before, after []byte) {
	f.replaced++
	f.before = before
	f.body = after
}

func TestApplyRewritesInPlace(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	rw := New(testDomains(), Options{Mode: ModeStrip, Residual: true}, zap.New(core))

	original := []byte(`<link rel="canonical" href="http://a.test/x">`)
	resp := &fakeResponse{url: "http://a.test/x", contentType: "text/html; charset=utf-8", body: original}

	require.True(t, rw.Apply(resp))
	assert.Equal(t, 1, resp.replaced)
	assert.Equal(t, original, resp.before)
	assert.Equal(t, `<link rel="canonical" href="https://b.test/x">`, string(resp.body))

	entries := logs.FilterMessage("rewrote response body").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "http://a.test/x", fields["url"])
	assert.Equal(t, "html", fields["category"])

	// A rewritten body has nothing left to change.
	assert.False(t, rw.Apply(resp))
	assert.Equal(t, 1, resp.replaced)
}

func TestApplySkips(t *testing.T) {
	t.Parallel()

	rw := newRewriter(testDomains(), ModeStrip)
	tests := []struct {
		name string
		resp *fakeResponse
	}{
		{"empty body", &fakeResponse{url: "http://a.test/", contentType: "text/html"}},
		{"binary", &fakeResponse{url: "http://a.test/i.png", contentType: "image/png", body: []byte("http://a.test/")}},
		{"no source reference", &fakeResponse{url: "http://a.test/", contentType: "text/html", body: []byte(`<a href="/x">`)}},
	}
	for _, tt := range tests {
		assert.False(t, rw.Apply(tt.resp), tt.name)
		assert.Zero(t, tt.resp.replaced, tt.name)
	}

	inert := New(domains.Load("", "", "https://b.test", "", nil), Options{}, nil)
	resp := &fakeResponse{url: "http://a.test/", contentType: "text/html", body: []byte(`<a href="http://a.test/x">`)}
	assert.False(t, inert.Apply(resp))
	assert.Zero(t, resp.replaced)
}
