package rewrite

import (
	"go.uber.org/zap"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/metrics"
)

// Response is the slice of a fetched response the orchestrator needs.
type Response interface {
	URL() string
	ContentType() string
	Body() []byte
	// ReplaceBody swaps the payload in place. before is the body that was
	// read, after its rewritten replacement.
	ReplaceBody(before, after []byte)
}

// Apply rewrites the body of resp in place when its content changes and
// reports whether it did. Empty bodies and inert configurations are skipped.
func (r *Rewriter) Apply(resp Response) bool {
	if r.domains.Inert() {
		return false
	}
	body := resp.Body()
	if len(body) == 0 {
		return false
	}
	res := r.Transform(body, resp.ContentType(), resp.URL())
	if !res.Changed {
		return false
	}
	resp.ReplaceBody(body, res.Content)
	metrics.ObserveRewrite(string(res.Category))
	r.logger.Info("rewrote response body",
		zap.String("url", resp.URL()),
		zap.String("category", string(res.Category)),
		zap.String("encoding", res.Encoding),
		zap.Int("bytes_before", len(body)),
		zap.Int("bytes_after", len(res.Content)),
	)
	return true
}
