package mirror

import (
	"github.com/gocolly/colly/v2"
)

// collyResponse exposes a colly response to the rewrite orchestrator.
type collyResponse struct {
	r *colly.Response
}

func (c collyResponse) URL() string {
	if c.r.Request == nil || c.r.Request.URL == nil {
		return ""
	}
	return c.r.Request.URL.String()
}

func (c collyResponse) ContentType() string {
	if c.r.Headers == nil {
		return ""
	}
	return c.r.Headers.Get("Content-Type")
}

func (c collyResponse) Body() []byte {
	return c.r.Body
}

func (c collyResponse) ReplaceBody(_, after []byte) {
	c.r.Body = after
}
