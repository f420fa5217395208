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
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/debugz"
)

const (
	ServerContextKey = ContextKey("xmount.Server.ContextKey")
)

// ServerContext is stored on every request context by the Server that accepted it.
type ServerContext struct {
	BindPoint    BindPoint
	ServerConfig *ServerConfig
}

// ServerContextFromRequestContext is a utility function to retrieve a *ServerContext reference from the
// http.Request that provides access to the BindPoint and ServerConfig the request arrived on.
func ServerContextFromRequestContext(ctx context.Context) *ServerContext {
	if val := ctx.Value(ServerContextKey); val != nil {
		if serverContext, ok := val.(*ServerContext); ok {
			return serverContext
		}
	}
	return nil
}

type namedHttpServer struct {
	*http.Server
	BindPoint    BindPoint
	ServerConfig *ServerConfig
	listener     net.Listener
}

func (s *namedHttpServer) NewBaseContext(_ net.Listener) context.Context {
	serverContext := &ServerContext{
		BindPoint:    s.BindPoint,
		ServerConfig: s.ServerConfig,
	}

	return context.WithValue(context.Background(), ServerContextKey, serverContext)
}

// Server represents all the http.Server's necessary to serve a single ServerConfig: one per BindPoint, all sharing
// the same root handler.
type Server struct {
	HttpServers    []*namedHttpServer
	ServerConfig   *ServerConfig
	OnHandlerPanic func(writer http.ResponseWriter, request *http.Request, panicVal interface{})

	logWriter *io.PipeWriter
	tlsConfig *tls.Config
	serving   sync.WaitGroup
}

// NewServer creates a new Server for serverConfig with handler as the root http.Handler of every listener.
func NewServer(serverConfig *ServerConfig, handler http.Handler) *Server {
	logWriter := pfxlog.Logger().Writer()

	server := &Server{
		logWriter:    logWriter,
		HttpServers:  []*namedHttpServer{},
		ServerConfig: serverConfig,
	}

	if serverConfig.Identity != nil {
		tlsConfig := serverConfig.Identity.ServerTLSConfig().Clone()
		tlsConfig.ClientAuth = tls.RequestClientCert
		tlsConfig.MinVersion = uint16(serverConfig.Options.MinTLSVersion)
		tlsConfig.MaxVersion = uint16(serverConfig.Options.MaxTLSVersion)
		server.tlsConfig = tlsConfig
	}

	rootHandler := server.wrapHandler(serverConfig, handler)

	for _, bindPoint := range serverConfig.BindPoints() {
		namedServer := &namedHttpServer{
			BindPoint:    bindPoint,
			ServerConfig: serverConfig,
			Server: &http.Server{
				Addr:         bindPoint.ServerAddress(),
				WriteTimeout: serverConfig.Options.WriteTimeout,
				ReadTimeout:  serverConfig.Options.ReadTimeout,
				IdleTimeout:  serverConfig.Options.IdleTimeout,
				Handler:      rootHandler,
				ErrorLog:     log.New(logWriter, "", 0),
			},
		}

		namedServer.BaseContext = namedServer.NewBaseContext

		server.HttpServers = append(server.HttpServers, namedServer)
	}

	return server
}

func (server *Server) wrapHandler(serverConfig *ServerConfig, handler http.Handler) http.Handler {
	//innermost/bottom -> outermost/top
	handler = server.wrapPanicRecovery(handler)
	if !serverConfig.Options.DisableCompression {
		handler = NewCompressionHandler(handler)
	}
	return handler
}

// wrapPanicRecovery wraps a http.Handler with another http.Handler that provides recovery.
func (server *Server) wrapPanicRecovery(handler http.Handler) http.Handler {
	wrappedHandler := http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		defer func() {
			if panicVal := recover(); panicVal != nil {
				if panicVal == http.ErrAbortHandler {
					panic(panicVal)
				}
				if server.OnHandlerPanic != nil {
					server.OnHandlerPanic(writer, request, panicVal)
					return
				}
				pfxlog.Logger().Errorf("panic caught by server handler: %v\n%v", panicVal, debugz.GenerateLocalStack())
				writer.WriteHeader(http.StatusInternalServerError)
			}
		}()

		handler.ServeHTTP(writer, request)
	})

	return wrappedHandler
}

// Start opens the listener of every BindPoint and begins serving on each. Start returns once all listeners are
// open; if any fails to open those already opened are closed and the error is returned.
func (server *Server) Start() error {
	logger := pfxlog.Logger()

	for _, httpServer := range server.HttpServers {
		listener, err := httpServer.BindPoint.Listener(server.ServerConfig.Name, server.tlsConfig)
		if err != nil {
			server.closeListeners()
			_ = server.logWriter.Close()
			return fmt.Errorf("error listening on %s: %w", httpServer.Addr, err)
		}
		httpServer.listener = listener
	}

	for _, httpServer := range server.HttpServers {
		logger.Infof("server %s listening on %s (secure: %v)", server.ServerConfig.Name, httpServer.listener.Addr(), httpServer.BindPoint.Secure())

		localServer := httpServer
		server.serving.Add(1)
		go func() {
			defer server.serving.Done()
			if err := localServer.Serve(localServer.listener); !errors.Is(err, http.ErrServerClosed) {
				pfxlog.Logger().Errorf("error serving on %s: %v", localServer.Addr, err)
			}
		}()
	}

	return nil
}

func (server *Server) closeListeners() {
	for _, httpServer := range server.HttpServers {
		if httpServer.listener != nil {
			_ = httpServer.listener.Close()
			httpServer.listener = nil
		}
	}
}

// Addresses returns the addresses of the open listeners, resolving any port 0 to the port actually chosen.
func (server *Server) Addresses() []net.Addr {
	var result []net.Addr
	for _, httpServer := range server.HttpServers {
		if httpServer.listener != nil {
			result = append(result, httpServer.listener.Addr())
		}
	}
	return result
}

// Shutdown stops the server and all underlying http.Server's. Listeners are closed before Shutdown waits for
// in-flight requests, bounded by ctx. Connections still open once ctx is done are closed forcibly.
func (server *Server) Shutdown(ctx context.Context) error {
	var errs []error

	for _, httpServer := range server.HttpServers {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down %s: %w", httpServer.Addr, err))
			if closeErr := httpServer.Close(); closeErr != nil {
				pfxlog.Logger().WithError(closeErr).Errorf("error closing connections on %s", httpServer.Addr)
			}
		}
	}

	server.serving.Wait()
	_ = server.logWriter.Close()

	return errors.Join(errs...)
}
