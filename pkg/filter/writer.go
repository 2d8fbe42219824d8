package filter

import (
	"bytes"
	"mime"
	"net/http"
	"strings"
)

// responseBuffer is an http.ResponseWriter that holds back HTML responses
// so their includes can be expanded. Any other response is passed straight
// through to the underlying writer once its header is written.
type responseBuffer struct {
	rw           http.ResponseWriter
	header       http.Header
	body         bytes.Buffer
	status       int
	wroteHeaders bool
	capture      bool
}

func newResponseBuffer(w http.ResponseWriter) *responseBuffer {
	return &responseBuffer{
		rw:     w,
		header: http.Header{},
	}
}

// Implementation of http.ResponseWriter
func (b *responseBuffer) Header() http.Header {
	return b.header
}

// Implementation of http.ResponseWriter
func (b *responseBuffer) WriteHeader(statusCode int) {
	if b.wroteHeaders {
		return
	}
	b.wroteHeaders = true
	b.status = statusCode
	b.capture = statusCode == http.StatusOK && processable(b.header)

	if !b.capture {
		copyHeader(b.rw.Header(), b.header)
		b.rw.WriteHeader(statusCode)
	}
}

// Implementation of http.ResponseWriter
func (b *responseBuffer) Write(p []byte) (int, error) {
	if !b.wroteHeaders {
		if b.header.Get("Content-Type") == "" {
			b.header.Set("Content-Type", http.DetectContentType(p))
		}
		b.WriteHeader(http.StatusOK)
	}
	if !b.capture {
		return b.rw.Write(p)
	}
	return b.body.Write(p)
}

// Flush implements http.Flusher for passed-through responses. Buffered
// responses are only sent once complete.
func (b *responseBuffer) Flush() {
	if !b.wroteHeaders || b.capture {
		return
	}
	if f, ok := b.rw.(http.Flusher); ok {
		f.Flush()
	}
}

// processable reports whether a response with header h is an uncompressed
// HTML document.
func processable(h http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil || mediaType != "text/html" {
		return false
	}
	encoding := strings.TrimSpace(h.Get("Content-Encoding"))
	return encoding == "" || strings.EqualFold(encoding, "identity")
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
