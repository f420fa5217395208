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
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_wrapPanicRecovery(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler failure")
	})

	t.Run("a panic answers 500", func(t *testing.T) {
		req := require.New(t)

		server := &Server{}
		recorder := httptest.NewRecorder()
		server.wrapPanicRecovery(panicking).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		req.Equal(http.StatusInternalServerError, recorder.Code)
	})

	t.Run("the panic hook takes over the response", func(t *testing.T) {
		req := require.New(t)

		var recovered interface{}
		server := &Server{
			OnHandlerPanic: func(writer http.ResponseWriter, request *http.Request, panicVal interface{}) {
				recovered = panicVal
				writer.WriteHeader(http.StatusServiceUnavailable)
			},
		}

		recorder := httptest.NewRecorder()
		server.wrapPanicRecovery(panicking).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

		req.Equal(http.StatusServiceUnavailable, recorder.Code)
		req.Equal("handler failure", recovered)
	})

	t.Run("aborted handlers are re-panicked", func(t *testing.T) {
		req := require.New(t)

		server := &Server{}
		aborting := server.wrapPanicRecovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))

		req.PanicsWithValue(http.ErrAbortHandler, func() {
			aborting.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}

func TestServer_Lifecycle(t *testing.T) {
	t.Run("one listener per enabled protocol and address", func(t *testing.T) {
		req := require.New(t)

		config := newLocalConfig(0)
		config.ListeningAddresses = append(config.ListeningAddresses, &AddressConfig{Host: "127.0.0.1", Http: true})

		server := NewServer(config, textHandler("ok"))
		req.Len(server.HttpServers, 2)

		req.NoError(server.Start())
		req.Len(server.Addresses(), 2)

		client := newTestClient()
		for _, addr := range server.Addresses() {
			code, body := get(t, client, "http://"+addr.String()+"/")
			req.Equal(http.StatusOK, code)
			req.Equal("ok", body)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req.NoError(server.Shutdown(ctx))
	})

	t.Run("requests carry the server context", func(t *testing.T) {
		req := require.New(t)

		config := newLocalConfig(0)
		contexts := make(chan *ServerContext, 1)
		server := NewServer(config, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			contexts <- ServerContextFromRequestContext(request.Context())
		}))
		req.NoError(server.Start())

		get(t, newTestClient(), "http://"+server.Addresses()[0].String()+"/")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req.NoError(server.Shutdown(ctx))

		seen := <-contexts
		req.NotNil(seen)
		req.Same(config, seen.ServerConfig)
		req.False(seen.BindPoint.Secure())
	})
}

func TestServer_ShutdownTimeout(t *testing.T) {
	t.Run("connections still busy at the deadline are closed", func(t *testing.T) {
		req := require.New(t)

		entered := make(chan struct{}, 1)
		release := make(chan struct{})
		defer close(release)

		server := NewServer(newLocalConfig(0), http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			entered <- struct{}{}
			select {
			case <-release:
			case <-request.Context().Done():
			}
		}))
		req.NoError(server.Start())

		url := "http://" + server.Addresses()[0].String() + "/"
		clientErrs := make(chan error, 1)
		go func() {
			client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
			resp, err := client.Get(url)
			if err == nil {
				_ = resp.Body.Close()
			}
			clientErrs <- err
		}()

		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			req.Fail("request never reached the handler")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		req.Error(server.Shutdown(ctx))

		select {
		case err := <-clientErrs:
			req.Error(err)
		case <-time.After(5 * time.Second):
			req.Fail("connection was left open after shutdown timed out")
		}
	})
}
