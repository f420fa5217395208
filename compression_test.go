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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/require"
)

const compressibleBody = "<html><body>" + "hello xmount " + "hello xmount " + "hello xmount " + "</body></html>"

func compressionRequest(method, acceptEncoding string) *http.Request {
	request := httptest.NewRequest(method, "/index.html", nil)
	if acceptEncoding != "" {
		request.Header.Set("Accept-Encoding", acceptEncoding)
	}
	return request
}

func TestCompressionHandler(t *testing.T) {
	handler := NewCompressionHandler(textHandler(compressibleBody))

	t.Run("brotli is used when accepted", func(t *testing.T) {
		req := require.New(t)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, compressionRequest(http.MethodGet, "gzip, br"))

		req.Equal(http.StatusOK, recorder.Code)
		req.Equal("br", recorder.Header().Get("Content-Encoding"))
		req.Contains(recorder.Header().Values("Vary"), "Accept-Encoding")

		body, err := io.ReadAll(brotli.NewReader(recorder.Body))
		req.NoError(err)
		req.Equal(compressibleBody, string(body))
	})

	t.Run("content type is sniffed from the uncompressed body", func(t *testing.T) {
		req := require.New(t)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, compressionRequest(http.MethodGet, "br"))

		req.True(strings.HasPrefix(recorder.Header().Get("Content-Type"), "text/html"))
	})

	t.Run("responses are untouched when brotli is not accepted", func(t *testing.T) {
		req := require.New(t)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, compressionRequest(http.MethodGet, "gzip"))

		req.Empty(recorder.Header().Get("Content-Encoding"))
		req.Equal(compressibleBody, recorder.Body.String())
	})

	t.Run("an explicit q=0 refuses brotli", func(t *testing.T) {
		req := require.New(t)

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, compressionRequest(http.MethodGet, "br;q=0, gzip"))

		req.Empty(recorder.Header().Get("Content-Encoding"))
	})

	t.Run("range requests are untouched", func(t *testing.T) {
		req := require.New(t)

		request := compressionRequest(http.MethodGet, "br")
		request.Header.Set("Range", "bytes=0-3")

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)

		req.Empty(recorder.Header().Get("Content-Encoding"))
	})

	t.Run("already encoded responses are untouched", func(t *testing.T) {
		req := require.New(t)

		encoded := NewCompressionHandler(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.Header().Set("Content-Encoding", "gzip")
			writer.WriteHeader(http.StatusOK)
			_, _ = writer.Write([]byte("already gzip"))
		}))

		recorder := httptest.NewRecorder()
		encoded.ServeHTTP(recorder, compressionRequest(http.MethodGet, "br"))

		req.Equal("gzip", recorder.Header().Get("Content-Encoding"))
		req.Equal("already gzip", recorder.Body.String())
	})

	t.Run("bodiless statuses are untouched", func(t *testing.T) {
		req := require.New(t)

		noContent := NewCompressionHandler(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusNoContent)
		}))

		recorder := httptest.NewRecorder()
		noContent.ServeHTTP(recorder, compressionRequest(http.MethodGet, "br"))

		req.Equal(http.StatusNoContent, recorder.Code)
		req.Empty(recorder.Header().Get("Content-Encoding"))
	})
}

func TestCompressionHandler_DeferredHeader(t *testing.T) {
	t.Run("content type is sniffed after an explicit WriteHeader", func(t *testing.T) {
		req := require.New(t)

		handler := NewCompressionHandler(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusCreated)
			_, _ = writer.Write([]byte(compressibleBody))
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, compressionRequest(http.MethodGet, "br"))

		req.Equal(http.StatusCreated, recorder.Code)
		req.Equal("br", recorder.Header().Get("Content-Encoding"))
		req.True(strings.HasPrefix(recorder.Header().Get("Content-Type"), "text/html"))
	})

	t.Run("a status without a body is written uncompressed", func(t *testing.T) {
		req := require.New(t)

		handler := NewCompressionHandler(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusMethodNotAllowed)
		}))

		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, compressionRequest(http.MethodGet, "br"))

		req.Equal(http.StatusMethodNotAllowed, recorder.Code)
		req.Empty(recorder.Header().Get("Content-Encoding"))
	})
}
