package outputcache

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCaptureWriterForwardsAndBuffers(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCaptureWriter(rec, 1024, nil)

	for _, chunk := range []string{"hello ", "world"} {
		if _, err := cw.Write([]byte(chunk)); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if rec.Body.String() != "hello world" {
		t.Fatalf("forwarded body %q", rec.Body.String())
	}
	if !cw.BufferingEnabled() {
		t.Fatal("buffering should still be enabled")
	}
	if got := cw.CachedBody(); !bytes.Equal(got, []byte("hello world")) {
		t.Fatalf("cached body %q", got)
	}
}

func TestCaptureWriterSegmentsLargeWrites(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCaptureWriter(rec, 1<<20, nil)

	payload := strings.Repeat("x", bufferSegmentSize*3+123)
	if _, err := cw.Write([]byte(payload)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := cw.CachedBody(); string(got) != payload {
		t.Fatalf("cached body length %d, want %d", len(got), len(payload))
	}
	if len(cw.segments) < 4 {
		t.Fatalf("expected the payload to span segments, got %d", len(cw.segments))
	}
}

func TestCaptureWriterCeilingDiscardsBuffer(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCaptureWriter(rec, 10, nil)

	if _, err := cw.Write([]byte("12345")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := cw.Write([]byte("6789012345")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if cw.BufferingEnabled() {
		t.Fatal("exceeding the ceiling must disable buffering")
	}
	if cw.segments != nil {
		t.Fatal("the buffer must be released on a ceiling breach")
	}
	// Forwarding continues unaffected.
	if rec.Body.String() != "123456789012345" {
		t.Fatalf("forwarded body %q", rec.Body.String())
	}
	if _, err := cw.Write([]byte("more")); err != nil {
		t.Fatalf("write after breach failed: %v", err)
	}
	if !strings.HasSuffix(rec.Body.String(), "more") {
		t.Fatal("writes after the breach must still be forwarded")
	}
}

func TestCaptureWriterOnStartFiresOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	var starts int
	cw := newCaptureWriter(rec, 1024, func() { starts++ })

	_, _ = cw.Write([]byte("a"))
	_, _ = cw.Write([]byte("b"))
	cw.WriteHeader(204)

	if starts != 1 {
		t.Fatalf("onStart fired %d times", starts)
	}
}

func TestCaptureWriterOnStartBeforeHeadersFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	var cw *captureWriter
	cw = newCaptureWriter(rec, 1024, func() {
		// Headers set here must still make it out.
		cw.Header().Set("X-Finalized", "1")
	})

	cw.WriteHeader(201)
	if rec.Code != 201 {
		t.Fatalf("status %d", rec.Code)
	}
	if rec.Header().Get("X-Finalized") != "1" {
		t.Fatal("onStart must run before headers are flushed")
	}
	if cw.Status() != 201 {
		t.Fatalf("captured status %d", cw.Status())
	}
}

func TestCaptureWriterImplicitStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCaptureWriter(rec, 1024, nil)

	_, _ = cw.Write([]byte("x"))
	if cw.Status() != 200 {
		t.Fatalf("implicit status %d, want 200", cw.Status())
	}
}

func TestCaptureWriterDisableBuffering(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := newCaptureWriter(rec, 1024, nil)

	_, _ = cw.Write([]byte("buffered"))
	cw.DisableBuffering()

	if cw.BufferingEnabled() {
		t.Fatal("buffering must be disabled")
	}
	if cw.segments != nil {
		t.Fatal("buffer must be released immediately")
	}
	_, _ = cw.Write([]byte(" still forwarded"))
	if rec.Body.String() != "buffered still forwarded" {
		t.Fatalf("forwarded body %q", rec.Body.String())
	}
}
