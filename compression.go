/*
	Copyright NetFoundry Inc.

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

	https://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

package xmount

import (
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// NewCompressionHandler brotli encodes responses for clients that send "Accept-Encoding: br". HEAD and range
// requests and responses that already carry a Content-Encoding are passed through untouched.
func NewCompressionHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !acceptsBrotli(request) || request.Method == http.MethodHead || request.Header.Get("Range") != "" {
			next.ServeHTTP(writer, request)
			return
		}

		compressed := &brotliResponseWriter{ResponseWriter: writer}
		defer compressed.Close()

		next.ServeHTTP(compressed, request)
	})
}

func acceptsBrotli(request *http.Request) bool {
	for _, value := range request.Header.Values("Accept-Encoding") {
		for _, encoding := range strings.Split(value, ",") {
			encoding = strings.TrimSpace(encoding)
			if idx := strings.Index(encoding, ";"); idx >= 0 {
				if strings.TrimSpace(encoding[idx+1:]) == "q=0" {
					continue
				}
				encoding = strings.TrimSpace(encoding[:idx])
			}
			if encoding == "br" {
				return true
			}
		}
	}
	return false
}

// brotliResponseWriter holds back the status line until the first Write so the Content-Type can be sniffed from
// the uncompressed body.
type brotliResponseWriter struct {
	http.ResponseWriter
	writer      *brotli.Writer
	status      int
	wroteHeader bool
}

func (w *brotliResponseWriter) WriteHeader(statusCode int) {
	if w.status == 0 {
		w.status = statusCode
	}
}

func (w *brotliResponseWriter) writeHeader(data []byte) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	status := w.status
	if status == 0 {
		status = http.StatusOK
	}

	header := w.Header()
	if header.Get("Content-Encoding") == "" && status >= http.StatusOK &&
		status != http.StatusNoContent && status != http.StatusNotModified {
		if header.Get("Content-Type") == "" && len(data) > 0 {
			header.Set("Content-Type", http.DetectContentType(data))
		}
		header.Del("Content-Length")
		header.Set("Content-Encoding", "br")
		header.Add("Vary", "Accept-Encoding")
		w.writer = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	}

	w.ResponseWriter.WriteHeader(status)
}

func (w *brotliResponseWriter) Write(data []byte) (int, error) {
	w.writeHeader(data)
	if w.writer == nil {
		return w.ResponseWriter.Write(data)
	}
	return w.writer.Write(data)
}

func (w *brotliResponseWriter) Flush() {
	w.writeHeader(nil)
	if w.writer != nil {
		_ = w.writer.Flush()
	}
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Close writes a status set without a body uncompressed and finishes the brotli stream otherwise.
func (w *brotliResponseWriter) Close() {
	if !w.wroteHeader {
		if w.status != 0 {
			w.wroteHeader = true
			w.ResponseWriter.WriteHeader(w.status)
		}
		return
	}
	if w.writer != nil {
		_ = w.writer.Close()
	}
}

func (w *brotliResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
