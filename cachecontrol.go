package outputcache

import (
	"net/http"
	"strings"
)

// cacheControl is a map of Cache-Control directive names to their values.
type cacheControl map[string]string

// parseCacheControl parses the Cache-Control header of a request or response
// header set into a directive map. Duplicate directives keep the first occurrence.
func parseCacheControl(headers http.Header) cacheControl {
	cc := cacheControl{}
	for _, part := range strings.Split(headers.Get("Cache-Control"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		directive, value, _ := strings.Cut(part, "=")
		directive = strings.ToLower(strings.TrimSpace(directive))
		if _, seen := cc[directive]; seen {
			continue
		}
		cc[directive] = strings.TrimSpace(value)
	}
	return cc
}

func (cc cacheControl) has(directive string) bool {
	_, ok := cc[directive]
	return ok
}
