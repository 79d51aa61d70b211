package rewrite

import (
	"fmt"
	"regexp"
	"strings"
)

// target selects which substitution a rule applies inside its region.
type target int

const (
	// targetProduction always writes absolute production references. Used for
	// metadata consumed off-site (canonical links, social cards, feeds).
	targetProduction target = iota
	// targetMode writes production references in ModeReplace and root-relative
	// paths in ModeStrip.
	targetMode
	// targetLiteral substitutes the exact configured value, case-sensitively.
	targetLiteral
	// targetScript behaves like targetMode except that ModeStrip deletes the
	// domain without ever inserting a root "/".
	targetScript
)

const bothQuotes = `"'`

// ruleSpec declares one pattern of a category. The expression must define a
// capture group named "v": the region whose domain references get rewritten.
// Every {q} in expr is expanded once per character of quotes.
type ruleSpec struct {
	name   string
	expr   string
	quotes string
	target target
	// nested rules process every identity per region instead of running once
	// per identity over the whole text.
	nested bool
}

// rule is a compiled ruleSpec.
type rule struct {
	name   string
	re     *regexp.Regexp
	group  int
	target target
	nested bool
}

var htmlRuleSpecs = []ruleSpec{
	{
		name:   "canonical",
		expr:   `(?i)<link\s[^>]*?\brel\s*=\s*["']canonical["'][^>]*?\shref\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "canonical-href-first",
		expr:   `(?i)<link\s[^>]*?\bhref\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*?\srel\s*=\s*["']canonical["'][^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "open-graph",
		expr:   `(?i)<meta\s[^>]*?\bproperty\s*=\s*["']og:[^"']*["'][^>]*?\scontent\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "open-graph-content-first",
		expr:   `(?i)<meta\s[^>]*?\bcontent\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*?\sproperty\s*=\s*["']og:[^"']*["'][^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "twitter-card",
		expr:   `(?i)<meta\s[^>]*?\bname\s*=\s*["']twitter:[^"']*["'][^>]*?\scontent\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "twitter-card-content-first",
		expr:   `(?i)<meta\s[^>]*?\bcontent\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*?\sname\s*=\s*["']twitter:[^"']*["'][^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "json-ld",
		expr:   `(?is)<script\s[^>]*?\btype\s*=\s*["']application/ld\+json["'][^>]*>(?P<v>.*?)</script>`,
		target: targetProduction,
	},
	{
		name:   "feed-link",
		expr:   `(?i)<link\s[^>]*?\btype\s*=\s*["']application/(?:rss|atom)\+xml["'][^>]*?\shref\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "feed-link-href-first",
		expr:   `(?i)<link\s[^>]*?\bhref\s*=\s*{q}(?P<v>[^{q}]*){q}[^>]*?\stype\s*=\s*["']application/(?:rss|atom)\+xml["'][^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
	{
		name:   "srcset",
		expr:   `(?i)\s(?:data-)?srcset\s*=\s*{q}(?P<v>[^{q}]*){q}`,
		quotes: bothQuotes,
		target: targetMode,
		nested: true,
	},
	{
		name:   "protocol-relative-meta",
		expr:   `(?i)<(?:meta|link)\s[^>]*?\b(?:content|href)\s*=\s*{q}(?P<v>//[^{q}]*){q}[^>]*>`,
		quotes: bothQuotes,
		target: targetProduction,
	},
}

// The url() rules also cover the url() form of @import.
var cssRuleSpecs = []ruleSpec{
	{
		name:   "url-quoted",
		expr:   `(?i)url\(\s*{q}(?P<v>[^{q}]*){q}\s*\)`,
		quotes: bothQuotes,
		target: targetMode,
	},
	{
		name:   "url-bare",
		expr:   `(?i)url\(\s*(?P<v>[^"'\s)][^\s)]*)\s*\)`,
		target: targetMode,
	},
	{
		name:   "import-string",
		expr:   `(?i)@import\s+{q}(?P<v>[^{q}]*){q}`,
		quotes: bothQuotes,
		target: targetMode,
	},
	{
		name:   "import-url",
		expr:   `(?i)@import\s+url\(\s*["']?(?P<v>[^"'\s)]*)`,
		target: targetMode,
	},
}

var jsRuleSpecs = []ruleSpec{
	{
		name:   "string-literal",
		expr:   `{q}(?P<v>(?:[^{q}\\\n]|\\.)*){q}`,
		quotes: bothQuotes,
		target: targetScript,
	},
	{
		name:   "template-literal",
		expr:   "(?s)`(?P<v>(?:[^`\\\\]|\\\\.)*)`",
		target: targetScript,
	},
	{
		name:   "protocol-relative-string",
		expr:   `{q}(?P<v>[^{q}\n]*//[^{q}\n]*){q}`,
		quotes: bothQuotes,
		target: targetScript,
	},
	{
		name:   "object-property",
		expr:   `\b(?:url|href|src)\s*:\s*{q}(?P<v>[^{q}\n]*){q}`,
		quotes: bothQuotes,
		target: targetScript,
	},
	{
		// The comment marker must follow a separator so the "//" of a URL scheme
		// is never taken for a comment.
		name:   "line-comment",
		expr:   `(?m)(?:^|[\s;{}(),])//(?P<v>[^\n]*)`,
		target: targetScript,
	},
	{
		name:   "block-comment",
		expr:   `(?s)/\*(?P<v>.*?)\*/`,
		target: targetScript,
	},
}

var textRuleSpecs = []ruleSpec{
	{name: "literal", expr: `(?s)\A(?P<v>.+)\z`, target: targetLiteral},
}

var residualRuleSpec = ruleSpec{name: "residual", expr: `(?s)\A(?P<v>.+)\z`, target: targetMode}

var scriptResidualRuleSpec = ruleSpec{name: "script-residual", expr: `(?s)\A(?P<v>.+)\z`, target: targetScript}

var (
	htmlRules     = mustCompileRules(htmlRuleSpecs)
	cssRules      = mustCompileRules(cssRuleSpecs)
	jsRules       = mustCompileRules(jsRuleSpecs)
	textRules     = mustCompileRules(textRuleSpecs)
	residualRules = mustCompileRules([]ruleSpec{residualRuleSpec})

	scriptResidualRules = mustCompileRules([]ruleSpec{scriptResidualRuleSpec})
)

func mustCompileRules(specs []ruleSpec) []*rule {
	rules, err := compileRules(specs)
	if err != nil {
		panic(err)
	}
	return rules
}

func compileRules(specs []ruleSpec) ([]*rule, error) {
	var out []*rule
	for _, spec := range specs {
		variants := []string{spec.expr}
		if spec.quotes != "" {
			variants = variants[:0]
			for _, q := range spec.quotes {
				variants = append(variants, strings.ReplaceAll(spec.expr, "{q}", string(q)))
			}
		}
		for _, expr := range variants {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile rule %s: %w", spec.name, err)
			}
			group := re.SubexpIndex("v")
			if group < 0 {
				return nil, fmt.Errorf("rule %s has no region group", spec.name)
			}
			out = append(out, &rule{
				name:   spec.name,
				re:     re,
				group:  group,
				target: spec.target,
				nested: spec.nested,
			})
		}
	}
	return out, nil
}

// apply rewrites every region matched by the rule with rewrite.
func (r *rule) apply(text string, rewrite func(string) string) string {
	locs := r.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	changed := false
	for _, loc := range locs {
		start, end := loc[2*r.group], loc[2*r.group+1]
		if start < 0 {
			continue
		}
		region := text[start:end]
		replaced := rewrite(region)
		if replaced == region {
			continue
		}
		if !changed {
			b.Grow(len(text))
			changed = true
		}
		b.WriteString(text[last:start])
		b.WriteString(replaced)
		last = end
	}
	if !changed {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}
