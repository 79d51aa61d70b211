package rewrite

import (
	"regexp"
	"strings"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/domains"
)

// substitution rewrites the references to one source-like identity.
type substitution struct {
	full      *regexp.Regexp
	proto     *regexp.Regexp
	fullRepl  string
	protoRepl string
	// rootRelative inserts a "/" when a stripped reference opens an attribute
	// or url() value and is not already followed by one, so a bare domain
	// becomes the site root instead of the current document.
	rootRelative bool
	hostHasPort  bool
}

// newSubstitution builds the substitution of id for the given target. Literal
// substitutions match the configured value exactly; the others match either
// scheme and any letter case.
func newSubstitution(id, production domains.Identity, tgt target, mode Mode) *substitution {
	s := &substitution{
		fullRepl:    production.Raw,
		protoRepl:   production.ProtocolRelative(),
		hostHasPort: strings.Contains(id.Host, ":"),
	}
	switch tgt {
	case targetLiteral:
		s.full = regexp.MustCompile(regexp.QuoteMeta(id.Raw))
		s.proto = regexp.MustCompile(regexp.QuoteMeta(id.ProtocolRelative()))
	default:
		s.full = regexp.MustCompile(`(?i)https?://` + regexp.QuoteMeta(id.Host))
		s.proto = regexp.MustCompile(`(?i)//` + regexp.QuoteMeta(id.Host))
	}
	if (tgt == targetMode || tgt == targetScript) && mode == ModeStrip {
		s.fullRepl = ""
		s.protoRepl = ""
		// Script values are concatenated with paths, so a bare domain must
		// strip to "" there.
		s.rootRelative = tgt == targetMode
	}
	return s
}

// apply rewrites full references first so the protocol-relative pass never
// sees the "//" of a scheme it would leave dangling.
func (s *substitution) apply(text string) string {
	text = s.replace(text, s.full, s.fullRepl)
	return s.replace(text, s.proto, s.protoRepl)
}

func (s *substitution) replace(text string, re *regexp.Regexp, repl string) string {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	changed := false
	for _, loc := range locs {
		if continuesHost(text, loc[1], s.hostHasPort) {
			continue
		}
		if !changed {
			b.Grow(len(text))
			changed = true
		}
		b.WriteString(text[last:loc[0]])
		b.WriteString(repl)
		if s.rootRelative && opensValue(text, loc[0]) && (loc[1] >= len(text) || text[loc[1]] != '/') {
			b.WriteByte('/')
		}
		last = loc[1]
	}
	if !changed {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

// opensValue reports whether the reference starting at i begins an attribute
// or url() value: it starts the region, or follows "=" or "(" with at most a
// quote in between.
func opensValue(text string, i int) bool {
	if i > 0 && (text[i-1] == '"' || text[i-1] == '\'') {
		i--
	}
	return i == 0 || text[i-1] == '=' || text[i-1] == '('
}

// continuesHost reports whether the byte at i extends the matched host into a
// different one, as in "a.test.example" or "a.test-cdn" or "a.test:8080".
func continuesHost(text string, i int, hostHasPort bool) bool {
	if i >= len(text) {
		return false
	}
	c := text[i]
	switch {
	case isAlnum(c), c == '-', c == '_', c == '@':
		return true
	case c == '.':
		return i+1 < len(text) && isAlnum(text[i+1])
	case c == ':' && !hostHasPort:
		return i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9'
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// rewriteSrcset rewrites each comma-separated candidate of a srcset value
// against every substitution and rejoins them with ", ". The value is
// returned untouched when no candidate changed.
func rewriteSrcset(value string, subs []*substitution) string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	changed := false
	for _, part := range parts {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		rewritten := candidate
		for _, s := range subs {
			rewritten = s.apply(rewritten)
		}
		if rewritten != candidate {
			changed = true
		}
		out = append(out, rewritten)
	}
	if !changed {
		return value
	}
	return strings.Join(out, ", ")
}
