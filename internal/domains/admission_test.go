package domains

import (
	"strings"
	"testing"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	plain := Load("http://a.test", "https://alt.test", "https://b.test", "", nil)
	split := Load("http://a.test", "https://alt.test", "https://b.test", "http://internal:2368", nil)
	inert := Load("http://a.test", "", "", "", nil)

	tests := []struct {
		name   string
		cfg    Config
		url    string
		kind   VerdictKind
		target string
		reason string
	}{
		{"inert accepts anything", inert, "https://elsewhere.test/x", Accept, "", ReasonInert},
		{"production remaps to fetch", plain, "https://b.test/post", Redirect, "http://a.test/post", ReasonProductionHost},
		{"production remaps to split fetch", split, "https://b.test/post", Redirect, "http://internal:2368/post", ReasonProductionHost},
		{"source accepted", plain, "http://a.test/about/", Accept, "", ReasonSource},
		{"source admin rejected", plain, "http://a.test/ghost/#/signin", Reject, "", ReasonAdmin},
		{"source admin rejected in split mode", split, "http://a.test/ghost/api/", Reject, "", ReasonAdmin},
		{"source redirected in split mode", split, "http://a.test/tag/go/", Redirect, "http://internal:2368/tag/go/", ReasonSplitFetch},
		{"fetch seed accepted", split, "http://internal:2368/", Accept, "", ReasonFetch},
		{"fetch admin rejected", split, "http://internal:2368/ghost/", Reject, "", ReasonAdmin},
		{"alternate remapped", plain, "https://alt.test/x?y=1", Redirect, "http://a.test/x?y=1", ReasonAlternate},
		{"alternate remapped to split fetch", split, "https://alt.test/x", Redirect, "http://internal:2368/x", ReasonAlternate},
		{"foreign rejected", plain, "https://cdn.other.test/lib.js", Reject, "", ReasonOutOfScope},
		{"only first occurrence replaced", plain, "https://b.test/?next=https://b.test/y", Redirect, "http://a.test/?next=https://b.test/y", ReasonProductionHost},
		{"prefix test is literal", plain, "http://a.testing/", Accept, "", ReasonSource},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.cfg.Decide(tt.url)
			if got.Kind != tt.kind || got.Target != tt.target || got.Reason != tt.reason {
				t.Fatalf("Decide(%q) = %+v, want kind=%s target=%q reason=%s", tt.url, got, tt.kind, tt.target, tt.reason)
			}
		})
	}
}

func TestDecideSpecExample(t *testing.T) {
	t.Parallel()

	cfg := Load("http://a.test", "", "https://b.test", "http://internal:2368", nil)
	got := cfg.Decide("https://b.test/post")
	if got.Kind != Redirect || got.Target != "http://internal:2368/post" {
		t.Fatalf("unexpected verdict %v", got)
	}
}

func TestAdminPathAlwaysRejected(t *testing.T) {
	t.Parallel()

	configs := []Config{
		Load("http://a.test/", "", "https://b.test", "", nil),
		Load("http://a.test", "https://alt.test http://alt2.test", "https://b.test", "", nil),
		Load("http://a.test", "", "https://b.test", "http://internal:2368", nil),
	}
	for _, cfg := range configs {
		url := strings.TrimRight(cfg.Source().Raw, "/") + "/ghost/settings"
		final, v := cfg.Resolve(url)
		if v.Kind != Reject || v.Reason != ReasonAdmin {
			t.Fatalf("expected admin rejection for %q, got %v (final %q)", url, v, final)
		}
	}
}

func TestResolveConverges(t *testing.T) {
	t.Parallel()

	cfg := Load("http://a.test", "https://alt1.test https://alt2.test", "https://b.test", "http://internal:2368", nil)
	urls := []string{
		"https://b.test/",
		"http://a.test/p/",
		"http://internal:2368/p/",
		"https://alt1.test/p/",
		"https://alt2.test/ghost/",
		"https://nowhere.test/",
	}
	bound := len(cfg.Alternates()) + 2
	for _, u := range urls {
		current := u
		rounds := 0
		for {
			v := cfg.Decide(current)
			if v.Kind != Redirect {
				break
			}
			current = v.Target
			rounds++
			if rounds > bound {
				t.Fatalf("%q did not converge within %d rounds", u, bound)
			}
		}
		final, v := cfg.Resolve(u)
		if final != current || v.Kind == Redirect {
			t.Fatalf("Resolve(%q) = %q %v, want %q", u, final, v, current)
		}
	}
}

func TestResolveBreaksDegenerateCycles(t *testing.T) {
	t.Parallel()

	// Production is a prefix of fetch, so every remapped URL is a production URL again.
	cfg := Load("http://a.test", "", "https://b.test", "https://b.test:2368", nil)
	_, v := cfg.Resolve("https://b.test/x")
	if v.Kind != Reject || v.Reason != ReasonCycle {
		t.Fatalf("expected cycle rejection, got %v", v)
	}
}

func TestRedirectToSelfIsRejected(t *testing.T) {
	t.Parallel()

	cfg := Load("http://a.test", "", "http://a.test", "", nil)
	v := cfg.Decide("http://a.test/x")
	if v.Kind != Reject || v.Reason != ReasonCycle {
		t.Fatalf("expected cycle rejection, got %v", v)
	}
}

func TestVerdictString(t *testing.T) {
	t.Parallel()

	if got := (Verdict{Kind: Redirect, Target: "http://x", Reason: ReasonAlternate}).String(); got != "redirect(http://x) [alternate_remap]" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := (Verdict{Kind: Reject, Reason: ReasonAdmin}).String(); got != "reject [admin]" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := VerdictKind(9).String(); got != "verdict(9)" {
		t.Fatalf("unexpected string %q", got)
	}
}
