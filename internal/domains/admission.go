package domains

import (
	"fmt"
	"strings"
)

// VerdictKind enumerates admission outcomes.
type VerdictKind int

// Admission outcomes.
const (
	Accept VerdictKind = iota
	Reject
	Redirect
)

// String implements fmt.Stringer.
func (k VerdictKind) String() string {
	switch k {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case Redirect:
		return "redirect"
	default:
		return fmt.Sprintf("verdict(%d)", int(k))
	}
}

// Reasons attached to verdicts. They double as metric label values.
const (
	ReasonInert          = "inert"
	ReasonProductionHost = "production_remap"
	ReasonAdmin          = "admin"
	ReasonSplitFetch     = "split_fetch"
	ReasonSource         = "source"
	ReasonFetch          = "fetch"
	ReasonAlternate      = "alternate_remap"
	ReasonOutOfScope     = "out_of_scope"
	ReasonCycle          = "cycle"
)

// Verdict is the outcome of an admission decision. Target is only set for
// Redirect verdicts and must itself be fed back through Decide.
type Verdict struct {
	Kind   VerdictKind
	Target string
	Reason string
}

// String implements fmt.Stringer.
func (v Verdict) String() string {
	if v.Kind == Redirect {
		return fmt.Sprintf("redirect(%s) [%s]", v.Target, v.Reason)
	}
	return fmt.Sprintf("%s [%s]", v.Kind, v.Reason)
}

func accepted(reason string) Verdict { return Verdict{Kind: Accept, Reason: reason} }

func rejected(reason string) Verdict { return Verdict{Kind: Reject, Reason: reason} }

func redirected(url, from, to, reason string) Verdict {
	target := strings.Replace(url, from, to, 1)
	if target == url {
		return rejected(ReasonCycle)
	}
	return Verdict{Kind: Redirect, Target: target, Reason: reason}
}

// Decide classifies a candidate URL. The first matching case wins:
//
//  1. inert configuration: accept
//  2. production prefix: redirect into the fetch domain
//  3. source prefix: reject the admin interface, redirect to fetch in
//     split-fetch mode, accept otherwise
//  4. fetch prefix (split-fetch only): reject the admin interface, accept otherwise
//  5. alternate prefix: redirect into the fetch domain
//  6. anything else: reject
//
// Prefix tests are literal and replacements touch only the first occurrence.
func (c Config) Decide(url string) Verdict {
	if c.Inert() {
		return accepted(ReasonInert)
	}
	if strings.HasPrefix(url, c.production.Raw) {
		return redirected(url, c.production.Raw, c.fetch.Raw, ReasonProductionHost)
	}
	if strings.HasPrefix(url, c.source.Raw) {
		if strings.HasPrefix(url, c.source.AdminPrefix()) {
			return rejected(ReasonAdmin)
		}
		if c.SplitFetch() {
			return redirected(url, c.source.Raw, c.fetch.Raw, ReasonSplitFetch)
		}
		return accepted(ReasonSource)
	}
	if c.SplitFetch() && strings.HasPrefix(url, c.fetch.Raw) {
		if strings.HasPrefix(url, c.fetch.AdminPrefix()) {
			return rejected(ReasonAdmin)
		}
		return accepted(ReasonFetch)
	}
	for _, alt := range c.alternates {
		if strings.HasPrefix(url, alt.Raw) {
			return redirected(url, alt.Raw, c.fetch.Raw, ReasonAlternate)
		}
	}
	return rejected(ReasonOutOfScope)
}

// Resolve follows redirects until an Accept or Reject verdict is reached and
// returns the final URL with that verdict. The number of rounds is bounded by
// the number of alternates plus two; exceeding it yields a cycle rejection.
func (c Config) Resolve(url string) (string, Verdict) {
	limit := len(c.alternates) + 2
	current := url
	for i := 0; i <= limit; i++ {
		v := c.Decide(current)
		if v.Kind != Redirect {
			return current, v
		}
		current = v.Target
	}
	return current, rejected(ReasonCycle)
}
