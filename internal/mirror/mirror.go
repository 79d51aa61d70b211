// Package mirror crawls a Ghost site with colly and writes every admitted
// resource, rewritten for the production domain, to a blob store.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/domains"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/hash/sha256"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/metrics"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/policy/ratelimit"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/rewrite"
)

// BlobStore persists mirrored resources.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Config controls the crawl.
type Config struct {
	// Seeds are the URLs the crawl starts from. When empty the crawl starts at
	// the production root and sitemap, which admission maps onto fetch.
	Seeds          []string
	UserAgent      string
	Concurrency    int
	Delay          time.Duration
	Timeout        time.Duration
	MaxDepth       int
	MaxBodyBytes   int
	HostHeader     string
	ForwardedProto string
	// RequestsPerSecond paces requests per host; zero means unlimited.
	RequestsPerSecond float64
	Burst             int
}

// Stats summarises a finished run.
type Stats struct {
	RunID      string
	Visited    int64
	Saved      int64
	Rewritten  int64
	Rejected   int64
	Redirected int64
	Failed     int64
}

// Mirror owns the collaborators of a crawl. A Mirror can run more than once;
// every Run gets a fresh collector.
type Mirror struct {
	cfg       Config
	domains   domains.Config
	rewriter  *rewrite.Rewriter
	store     BlobStore
	logger    *zap.Logger
	transport http.RoundTripper
}

// New validates the configuration and builds a Mirror.
func New(cfg Config, dc domains.Config, rw *rewrite.Rewriter, store BlobStore, logger *zap.Logger) (*Mirror, error) {
	if rw == nil {
		return nil, errors.New("rewriter is required")
	}
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mirror{
		cfg:      cfg,
		domains:  dc,
		rewriter: rw,
		store:    store,
		logger:   logger,
	}
	var base http.RoundTripper = newHTTPTransport()
	if cfg.RequestsPerSecond > 0 {
		base = ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSecond, Burst: cfg.Burst}).Transport(base)
	}
	m.transport = &redirectTransport{base: &fetchHeaderTransport{
		base:           base,
		fetchHost:      hostOf(dc.Fetch().Raw),
		hostHeader:     cfg.HostHeader,
		forwardedProto: strings.ToLower(cfg.ForwardedProto),
	}}
	if len(m.seeds()) == 0 {
		return nil, errors.New("no seeds configured and no source or production domain to derive them from")
	}
	return m, nil
}

// seeds returns the configured seeds or the production (falling back to
// source) root and sitemap.
func (m *Mirror) seeds() []string {
	if len(m.cfg.Seeds) > 0 {
		return m.cfg.Seeds
	}
	base := m.domains.Production()
	if base.IsZero() {
		base = m.domains.Source()
	}
	if base.IsZero() {
		return nil
	}
	root := strings.TrimRight(base.Raw, "/")
	return []string{root + "/", root + "/sitemap.xml"}
}

// run carries the per-run state shared by the collector callbacks.
type run struct {
	*Mirror
	ctx    context.Context
	logger *zap.Logger
	stats  struct {
		visited, saved, rewritten, rejected, redirected, failed atomic.Int64
	}
}

// Run crawls from the seeds until no admitted URL is left or ctx is done.
func (m *Mirror) Run(ctx context.Context) (Stats, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return Stats{}, fmt.Errorf("generate run id: %w", err)
	}
	r := &run{Mirror: m, ctx: ctx, logger: m.logger.With(zap.String("run_id", runID.String()))}

	c, err := r.newCollector()
	if err != nil {
		return Stats{}, err
	}
	r.registerHooks(c)

	r.logger.Info("mirror run started", zap.Strings("seeds", m.seeds()))
	for _, seed := range m.seeds() {
		if err := c.Visit(seed); err != nil {
			r.logger.Warn("seed visit failed", zap.String("url", seed), zap.Error(err))
		}
	}
	c.Wait()

	stats := Stats{
		RunID:      runID.String(),
		Visited:    r.stats.visited.Load(),
		Saved:      r.stats.saved.Load(),
		Rewritten:  r.stats.rewritten.Load(),
		Rejected:   r.stats.rejected.Load(),
		Redirected: r.stats.redirected.Load(),
		Failed:     r.stats.failed.Load(),
	}
	r.logger.Info("mirror run finished",
		zap.Int64("visited", stats.Visited),
		zap.Int64("saved", stats.Saved),
		zap.Int64("rewritten", stats.Rewritten),
		zap.Int64("rejected", stats.Rejected),
		zap.Int64("redirected", stats.Redirected),
		zap.Int64("failed", stats.Failed),
	)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("mirror run interrupted: %w", err)
	}
	return stats, nil
}

func (r *run) newCollector() (*colly.Collector, error) {
	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.StdlibContext(r.ctx),
		colly.MaxDepth(r.cfg.MaxDepth),
	}
	if r.cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(r.cfg.UserAgent))
	}
	if r.cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(r.cfg.MaxBodyBytes))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(r.transport)
	c.SetRequestTimeout(r.cfg.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: r.cfg.Concurrency,
		Delay:       r.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("configure crawl limits: %w", err)
	}
	return c, nil
}

// collectorHooks is the subset of *colly.Collector the run registers on.
type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
	OnHTML(string, colly.HTMLCallback)
	OnXML(string, colly.XMLCallback)
}

func (r *run) registerHooks(c collectorHooks) {
	c.OnRequest(r.admit)
	c.OnResponse(r.handleResponse)
	c.OnError(r.handleError)
	c.OnHTML("a[href], link[href]", func(e *colly.HTMLElement) {
		r.discover(e.Request, e.Attr("href"))
	})
	c.OnHTML("script[src], img[src], source[src], video[src], audio[src], iframe[src]", func(e *colly.HTMLElement) {
		r.discover(e.Request, e.Attr("src"))
	})
	c.OnHTML("img[srcset], source[srcset], img[data-srcset]", func(e *colly.HTMLElement) {
		for _, attr := range []string{"srcset", "data-srcset"} {
			for _, candidate := range srcsetURLs(e.Attr(attr)) {
				r.discover(e.Request, candidate)
			}
		}
	})
	c.OnXML("//loc", func(e *colly.XMLElement) {
		r.discover(e.Request, strings.TrimSpace(e.Text))
	})
}

// admit is the admission callback: accepted requests proceed, rejected ones
// are dropped, redirected ones are replaced by a visit to their target.
func (r *run) admit(req *colly.Request) {
	if r.ctx.Err() != nil {
		req.Abort()
		return
	}
	u := req.URL.String()
	verdict := r.domains.Decide(u)
	metrics.ObserveAdmission(verdict.Kind.String(), verdict.Reason)

	switch verdict.Kind {
	case domains.Accept:
		r.logger.Debug("admitted", zap.String("url", u), zap.String("reason", verdict.Reason))
	case domains.Reject:
		r.stats.rejected.Add(1)
		r.logger.Debug("rejected", zap.String("url", u), zap.String("reason", verdict.Reason))
		req.Abort()
	case domains.Redirect:
		r.stats.redirected.Add(1)
		r.logger.Debug("redirected",
			zap.String("url", u),
			zap.String("target", verdict.Target),
			zap.String("reason", verdict.Reason),
		)
		req.Abort()
		// Visit errors only report targets that were already queued or are too deep.
		if err := req.Visit(verdict.Target); err != nil {
			r.logger.Debug("redirect target skipped", zap.String("target", verdict.Target), zap.Error(err))
		}
	}
}

// handleResponse is the response callback: rewrite, persist, and for
// stylesheets discover referenced assets.
func (r *run) handleResponse(resp *colly.Response) {
	r.stats.visited.Add(1)
	wrapped := collyResponse{r: resp}
	if r.rewriter.Apply(wrapped) {
		r.stats.rewritten.Add(1)
	}

	contentType := wrapped.ContentType()
	key := ObjectPath(resp.Request.URL, contentType)
	uri, err := r.store.PutObject(r.ctx, key, contentType, bytes.NewReader(resp.Body))
	if err != nil {
		r.stats.failed.Add(1)
		metrics.ObserveSave(resp.Request.URL.String(), "error", 0)
		r.logger.Error("save failed", zap.String("url", wrapped.URL()), zap.String("path", key), zap.Error(err))
		return
	}
	r.stats.saved.Add(1)
	metrics.ObserveSave(resp.Request.URL.String(), "saved", len(resp.Body))
	r.logger.Info("saved",
		zap.String("url", wrapped.URL()),
		zap.String("uri", uri),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.String("sha256", sha256.Sum(resp.Body)),
	)

	if rewrite.Classify(contentType) == rewrite.CategoryCSS {
		for _, ref := range stylesheetURLs(resp.Body) {
			r.discover(resp.Request, ref)
		}
	}
}

// handleError follows HTTP redirects through admission and records failures.
func (r *run) handleError(resp *colly.Response, err error) {
	if resp != nil && resp.StatusCode >= 300 && resp.StatusCode < 400 && resp.Headers != nil {
		if location := resp.Headers.Get(redirectLocationHeader); location != "" {
			r.logger.Debug("following http redirect",
				zap.String("url", resp.Request.URL.String()),
				zap.String("target", location),
				zap.Int("status", resp.StatusCode),
			)
			r.discover(resp.Request, location)
			return
		}
	}
	r.stats.failed.Add(1)
	u := ""
	if resp != nil && resp.Request != nil {
		u = resp.Request.URL.String()
		metrics.ObserveSave(u, "error", 0)
	}
	r.logger.Warn("fetch failed", zap.String("url", u), zap.Error(err))
}

// discover resolves ref against the page it was found on and queues it.
// Admission decides whether it is fetched.
func (r *run) discover(req *colly.Request, ref string) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || hasIgnoredScheme(ref) {
		return
	}
	abs := req.AbsoluteURL(ref)
	if abs == "" {
		return
	}
	if u, err := url.Parse(abs); err == nil {
		u.Fragment = ""
		abs = u.String()
	}
	if err := req.Visit(abs); err != nil {
		r.logger.Debug("visit skipped", zap.String("url", abs), zap.Error(err))
	}
}

var ignoredSchemes = []string{"data:", "mailto:", "javascript:", "tel:", "blob:"}

func hasIgnoredScheme(ref string) bool {
	lower := strings.ToLower(ref)
	for _, scheme := range ignoredSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// srcsetURLs returns the URL of each srcset candidate.
func srcsetURLs(value string) []string {
	var out []string
	for _, candidate := range strings.Split(value, ",") {
		fields := strings.Fields(candidate)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

var stylesheetRef = regexp.MustCompile(`(?i)(?:url\(\s*["']?([^"')\s]+)|@import\s+["']([^"']+)["'])`)

// stylesheetURLs lists the url() and @import references of a stylesheet.
func stylesheetURLs(css []byte) []string {
	var out []string
	for _, m := range stylesheetRef.FindAllSubmatch(css, -1) {
		ref := m[1]
		if len(ref) == 0 {
			ref = m[2]
		}
		if len(ref) > 0 {
			out = append(out, string(ref))
		}
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
