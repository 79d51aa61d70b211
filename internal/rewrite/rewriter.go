// Package rewrite removes traces of the source site from mirrored content.
// Each payload is classified by content type, decoded, run through the
// ordered rules of its category and re-encoded with its original charset.
package rewrite

import (
	"bytes"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/charset"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/domains"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/metrics"
)

// Mode selects how ordinary references to source-like domains are rewritten.
type Mode string

const (
	// ModeStrip turns references into root-relative paths.
	ModeStrip Mode = "strip"
	// ModeReplace turns references into absolute production URLs.
	ModeReplace Mode = "replace"
)

// ParseMode validates a configured mode. An empty value selects ModeStrip.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeStrip:
		return ModeStrip, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", fmt.Errorf("unknown rewrite mode %q (want %q or %q)", raw, ModeStrip, ModeReplace)
}

// Category is the rewriting strategy chosen for a content type.
type Category string

// Content categories.
const (
	CategoryHTML        Category = "html"
	CategoryCSS         Category = "css"
	CategoryJavaScript  Category = "javascript"
	CategoryText        Category = "text"
	CategoryPassthrough Category = "passthrough"
)

var javascriptTypes = []string{
	"application/javascript",
	"application/x-javascript",
	"text/javascript",
	"application/ecmascript",
	"text/ecmascript",
}

var genericTypes = []string{
	"text/",
	"application/json",
	"application/ld+json",
	"application/xml",
	"application/xhtml+xml",
	"application/rss+xml",
	"application/atom+xml",
}

// Classify maps a content type onto its rewriting category.
func Classify(contentType string) Category {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case ct == "":
		return CategoryPassthrough
	case strings.HasPrefix(ct, "text/html"):
		return CategoryHTML
	case strings.HasPrefix(ct, "text/css"):
		return CategoryCSS
	}
	for _, prefix := range javascriptTypes {
		if strings.HasPrefix(ct, prefix) {
			return CategoryJavaScript
		}
	}
	for _, prefix := range genericTypes {
		if strings.HasPrefix(ct, prefix) {
			return CategoryText
		}
	}
	return CategoryPassthrough
}

// Options tunes a Rewriter.
type Options struct {
	Mode Mode
	// Residual enables a final sweep over HTML, CSS and JavaScript that
	// rewrites references the category rules did not reach.
	Residual bool
}

// Result is the outcome of transforming one payload.
type Result struct {
	// Content is the rewritten payload, or the input bytes when nothing changed.
	Content  []byte
	Changed  bool
	Category Category
	// Encoding is the charset the payload was decoded with, empty when it was
	// never decoded.
	Encoding string
}

// Rewriter transforms payloads for one domain configuration. It is safe for
// concurrent use.
type Rewriter struct {
	domains domains.Config
	opts    Options
	logger  *zap.Logger
	subs    map[target][]*substitution
}

// New builds a Rewriter, compiling the substitutions of every source-like
// identity once.
func New(cfg domains.Config, opts Options, logger *zap.Logger) *Rewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = ModeStrip
	}
	r := &Rewriter{
		domains: cfg,
		opts:    opts,
		logger:  logger,
		subs:    make(map[target][]*substitution, 4),
	}
	if cfg.Inert() {
		return r
	}
	for _, id := range cfg.SourceLike() {
		for _, tgt := range []target{targetProduction, targetMode, targetLiteral, targetScript} {
			r.subs[tgt] = append(r.subs[tgt], newSubstitution(id, cfg.Production(), tgt, opts.Mode))
		}
	}
	return r
}

// Mode reports the configured rewrite mode.
func (r *Rewriter) Mode() Mode {
	return r.opts.Mode
}

// Transform rewrites body according to its content type. Payloads that cannot
// be decoded or re-encoded come back unchanged.
func (r *Rewriter) Transform(body []byte, contentType, url string) Result {
	cat := Classify(contentType)
	res := Result{Content: body, Category: cat}
	if r.domains.Inert() || cat == CategoryPassthrough || len(body) == 0 {
		return res
	}

	text, enc, err := charset.Decode(body, contentType)
	res.Encoding = enc
	if err != nil {
		r.logger.Warn("leaving undecodable payload untouched",
			zap.String("url", url),
			zap.String("encoding", enc),
			zap.Error(err),
		)
		metrics.ObserveDecodeFailure(enc)
		return res
	}

	rewritten := r.rewrite(cat, text)
	if rewritten == text {
		return res
	}
	encoded, err := charset.Encode(rewritten, enc)
	if err != nil {
		r.logger.Warn("leaving payload untouched after re-encoding failed",
			zap.String("url", url),
			zap.String("encoding", enc),
			zap.Error(err),
		)
		return res
	}
	if bytes.Equal(encoded, body) {
		return res
	}
	res.Content = encoded
	res.Changed = true
	return res
}

// RewriteHTML applies the HTML rules to decoded text.
func (r *Rewriter) RewriteHTML(text string) string { return r.rewrite(CategoryHTML, text) }

// RewriteCSS applies the stylesheet rules to decoded text.
func (r *Rewriter) RewriteCSS(text string) string { return r.rewrite(CategoryCSS, text) }

// RewriteJavaScript applies the script rules to decoded text.
func (r *Rewriter) RewriteJavaScript(text string) string {
	return r.rewrite(CategoryJavaScript, text)
}

// RewriteText substitutes the configured source-like values with production.
func (r *Rewriter) RewriteText(text string) string { return r.rewrite(CategoryText, text) }

func (r *Rewriter) rewrite(cat Category, text string) string {
	if r.domains.Inert() {
		return text
	}
	rules, residual := htmlRules, residualRules
	switch cat {
	case CategoryHTML:
	case CategoryCSS:
		rules = cssRules
	case CategoryJavaScript:
		rules, residual = jsRules, scriptResidualRules
	case CategoryText:
		return r.run(text, textRules)
	default:
		return text
	}
	text = r.run(text, rules)
	if r.opts.Residual {
		text = r.run(text, residual)
	}
	return text
}

// run evaluates rules in order. Consecutive flat rules form a group that runs
// once per identity, identities outermost. A nested rule visits each region
// once and applies every identity inside it.
func (r *Rewriter) run(text string, rules []*rule) string {
	for i := 0; i < len(rules); {
		if rules[i].nested {
			subs := r.subs[rules[i].target]
			text = rules[i].apply(text, func(region string) string {
				return rewriteSrcset(region, subs)
			})
			i++
			continue
		}
		j := i
		for j < len(rules) && !rules[j].nested {
			j++
		}
		group := rules[i:j]
		for idx := range r.subs[targetMode] {
			for _, rl := range group {
				sub := r.subs[rl.target][idx]
				text = rl.apply(text, sub.apply)
			}
		}
		i = j
	}
	return text
}
