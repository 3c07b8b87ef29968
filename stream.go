package outputcache

import "net/http"

// bufferSegmentSize is the size of each buffer segment. Segmenting avoids
// large contiguous allocations and makes truncation on a ceiling breach
// cheap.
const bufferSegmentSize = 16 * 1024

// captureWriter is a write-through buffering wrapper installed as the
// response writer during capture. All writes are forwarded to the original
// writer; additionally the body is accumulated into an in-memory segmented
// buffer until the cumulative size exceeds the configured ceiling, at which
// point the buffer is discarded and buffering disables itself. Forwarding is
// unaffected by the buffering state.
//
// The one-shot onStart callback fires just before the first header or body
// byte reaches the original writer, while outbound headers can still be
// amended.
type captureWriter struct {
	rw      http.ResponseWriter
	onStart func()
	limit   int64

	started   bool
	status    int
	buffering bool
	segments  [][]byte
	size      int64
}

func newCaptureWriter(rw http.ResponseWriter, limit int64, onStart func()) *captureWriter {
	return &captureWriter{
		rw:        rw,
		onStart:   onStart,
		limit:     limit,
		status:    http.StatusOK,
		buffering: true,
	}
}

func (w *captureWriter) Header() http.Header {
	return w.rw.Header()
}

func (w *captureWriter) WriteHeader(code int) {
	if !w.started {
		w.started = true
		w.status = code
		if w.onStart != nil {
			w.onStart()
		}
	}
	w.rw.WriteHeader(code)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.WriteHeader(http.StatusOK)
	}
	if w.buffering {
		w.buffer(p)
	}
	return w.rw.Write(p)
}

// buffer appends p to the segmented buffer, discarding everything once the
// ceiling would be exceeded.
func (w *captureWriter) buffer(p []byte) {
	if w.size+int64(len(p)) > w.limit {
		w.segments = nil
		w.size = 0
		w.buffering = false
		return
	}
	for len(p) > 0 {
		var seg []byte
		if n := len(w.segments); n > 0 && len(w.segments[n-1]) < cap(w.segments[n-1]) {
			seg = w.segments[n-1]
			w.segments = w.segments[:n-1]
		} else {
			seg = make([]byte, 0, bufferSegmentSize)
		}
		n := copy(seg[len(seg):cap(seg)], p)
		seg = seg[:len(seg)+n]
		w.segments = append(w.segments, seg)
		w.size += int64(n)
		p = p[n:]
	}
}

// DisableBuffering releases the buffer immediately. Forwarding continues.
func (w *captureWriter) DisableBuffering() {
	w.segments = nil
	w.size = 0
	w.buffering = false
}

// BufferingEnabled reports whether the body is still being accumulated.
func (w *captureWriter) BufferingEnabled() bool {
	return w.buffering
}

// CachedBody returns the accumulated body. Only meaningful while
// BufferingEnabled is true.
func (w *captureWriter) CachedBody() []byte {
	body := make([]byte, 0, w.size)
	for _, seg := range w.segments {
		body = append(body, seg...)
	}
	return body
}

// Status returns the response status written so far, defaulting to 200.
func (w *captureWriter) Status() int {
	return w.status
}

// Flush forwards to the original writer when it supports flushing.
func (w *captureWriter) Flush() {
	if f, ok := w.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the original writer to http.ResponseController.
func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.rw
}
