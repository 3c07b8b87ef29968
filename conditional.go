package outputcache

import (
	"net/http"
	"strings"
	"time"
)

// notModifiedHeaders is the set of cached headers allowed on a 304 response,
// in the canonical form used by http.Header.
var notModifiedHeaders = []string{
	"Cache-Control",
	"Content-Location",
	"Date",
	"Etag",
	"Expires",
	"Vary",
}

// isNotModified decides whether a hit can be answered with 304 Not Modified
// given the request's conditional headers and the cached entry's headers.
//
// If-None-Match, when present, decides alone: a literal * matches any stored
// entry, otherwise any listed tag matching the cached ETag under weak
// comparison yields 304, and If-Modified-Since is ignored either way.
// Otherwise If-Modified-Since is compared against the cached Last-Modified,
// falling back to Date.
func isNotModified(reqHeader, entryHeader http.Header) bool {
	if tags := parseETagList(reqHeader.Values(headerIfNoneMatch)); tags != nil {
		if len(tags) == 1 && strings.EqualFold(tags[0], "*") {
			return true
		}
		cached := entryHeader.Get(headerETag)
		if cached == "" {
			return false
		}
		for _, tag := range tags {
			if etagWeakMatch(tag, cached) {
				return true
			}
		}
		return false
	}

	since := reqHeader.Get(headerIfModifiedSince)
	if since == "" {
		return false
	}
	sinceTime, err := http.ParseTime(since)
	if err != nil {
		return false
	}
	modified := entryHeader.Get(headerLastModified)
	if modified == "" {
		modified = entryHeader.Get(headerDate)
	}
	modifiedTime, err := http.ParseTime(modified)
	if err != nil {
		return false
	}
	// HTTP dates carry second resolution.
	return !modifiedTime.Truncate(time.Second).After(sinceTime)
}

// parseETagList splits If-None-Match header values into individual entity
// tags. Returns nil when the header is absent.
func parseETagList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	var tags []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tags = append(tags, part)
			}
		}
	}
	if tags == nil {
		// Present but empty; treat as no condition.
		return nil
	}
	return tags
}

// etagWeakMatch compares two entity tags under weak comparison: the W/
// prefix is ignored on both sides and the remaining opaque tags must be
// identical.
func etagWeakMatch(a, b string) bool {
	return strings.TrimPrefix(a, "W/") == strings.TrimPrefix(b, "W/")
}

// writeNotModified emits a 304 response carrying only the allowed subset of
// the cached entry's headers. No body is written.
func writeNotModified(w http.ResponseWriter, entry *Entry) {
	h := w.Header()
	for _, name := range notModifiedHeaders {
		if values, ok := entry.Header[name]; ok {
			h[name] = append([]string(nil), values...)
		}
	}
	w.WriteHeader(http.StatusNotModified)
}
