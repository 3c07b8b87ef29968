package outputcache

import (
	"net/http"
	"time"
)

// Entry is an immutable snapshot of a past response.
//
// Header names are kept in canonical MIME form so lookups are
// case-insensitive. The Age header is never part of an entry; it is computed
// at serve time. When Content-Length is present it equals len(Body), except
// for entries captured from HEAD requests, which may carry the length of the
// body a GET would have produced.
type Entry struct {
	Created    time.Time
	StatusCode int
	Header     http.Header
	Body       []byte
	Tags       []string
}
