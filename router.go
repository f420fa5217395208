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
	"sort"
	"strings"
	"sync"

	"github.com/openziti/foundation/v2/concurrenz"
	"github.com/sirupsen/logrus"
)

// DefaultHttpHandlerProvider allows the handler used for unmatched requests to be inherited from a parent component.
type DefaultHttpHandlerProvider interface {
	GetDefaultHttpHandler() http.Handler
	SetDefaultHttpHandler(handler http.Handler)
	SetParent(parent DefaultHttpHandlerProvider)
}

type DefaultHttpHandlerProviderImpl struct {
	Parent      DefaultHttpHandlerProvider
	HttpHandler http.Handler
}

var _ DefaultHttpHandlerProvider = &DefaultHttpHandlerProviderImpl{}

func handler404(rw http.ResponseWriter, _ *http.Request) {
	rw.WriteHeader(http.StatusNotFound)
	_, _ = rw.Write([]byte{})
}

// GetDefaultHttpHandler returns the local handler, else the parent's, else a handler that responds 404.
func (d *DefaultHttpHandlerProviderImpl) GetDefaultHttpHandler() http.Handler {
	if d.HttpHandler != nil {
		return d.HttpHandler
	}

	if d.Parent != nil {
		if handler := d.Parent.GetDefaultHttpHandler(); handler != nil {
			return handler
		}
	}

	return http.HandlerFunc(handler404)
}

func (d *DefaultHttpHandlerProviderImpl) SetDefaultHttpHandler(handler http.Handler) {
	d.HttpHandler = handler
}

func (d *DefaultHttpHandlerProviderImpl) SetParent(parent DefaultHttpHandlerProvider) {
	d.Parent = parent
}

type route struct {
	prefix string
	target http.Handler
}

// routeTable is immutable once published. Routes are ordered longest prefix first.
type routeTable struct {
	routes []route
}

func (table *routeTable) find(path string) (route, bool) {
	if table == nil {
		return route{}, false
	}
	for _, r := range table.routes {
		if prefixMatches(r.prefix, path) {
			return r, true
		}
	}
	return route{}, false
}

func (table *routeTable) all() []route {
	if table == nil {
		return nil
	}
	return table.routes
}

func prefixMatches(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func relativePath(prefix, path string) string {
	if prefix == "/" {
		return path
	}
	return path[len(prefix):]
}

// PathRouter is a concurrent longest-prefix-match dispatch table. Matching is segment aware: the prefix "/api"
// matches "/api" and "/api/users" but not "/apis". Bind and Unbind copy the table and publish the copy, so Route
// and ServeHTTP never take a lock.
//
// When a request is routed the matched prefix is stripped from URL.Path. The original path is retained on the
// request context, see RequestPathFromRequestContext.
type PathRouter struct {
	DefaultHttpHandlerProviderImpl
	lock  sync.Mutex
	table concurrenz.AtomicValue[*routeTable]
}

// NewPathRouter creates an empty PathRouter
func NewPathRouter() *PathRouter {
	router := &PathRouter{}
	router.table.Store(&routeTable{})
	return router
}

// Bind routes all requests under prefix to target, replacing any existing binding for the same prefix.
func (router *PathRouter) Bind(prefix string, target http.Handler) {
	prefix = normalizePrefix(prefix)

	router.lock.Lock()
	defer router.lock.Unlock()

	current := router.table.Load()
	routes := make([]route, 0, len(current.all())+1)
	for _, r := range current.all() {
		if r.prefix != prefix {
			routes = append(routes, r)
		}
	}
	routes = append(routes, route{prefix: prefix, target: target})
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].prefix) > len(routes[j].prefix)
	})

	router.table.Store(&routeTable{routes: routes})
	logrus.Debugf("bound router prefix [%s]", prefix)
}

// Unbind removes the binding for prefix. Unknown prefixes are ignored.
func (router *PathRouter) Unbind(prefix string) {
	prefix = normalizePrefix(prefix)

	router.lock.Lock()
	defer router.lock.Unlock()

	current := router.table.Load()
	routes := make([]route, 0, len(current.all()))
	for _, r := range current.all() {
		if r.prefix != prefix {
			routes = append(routes, r)
		}
	}

	router.table.Store(&routeTable{routes: routes})
	logrus.Debugf("unbound router prefix [%s]", prefix)
}

// Route returns the target bound to the longest prefix matching path and the matched prefix.
func (router *PathRouter) Route(path string) (http.Handler, string, bool) {
	r, ok := router.table.Load().find(path)
	if !ok {
		return nil, "", false
	}
	return r.target, r.prefix, true
}

// Prefixes returns the currently bound prefixes, longest first.
func (router *PathRouter) Prefixes() []string {
	current := router.table.Load()
	result := make([]string, 0, len(current.all()))
	for _, r := range current.all() {
		result = append(result, r.prefix)
	}
	return result
}

func (router *PathRouter) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	r, ok := router.table.Load().find(request.URL.Path)
	if !ok {
		router.GetDefaultHttpHandler().ServeHTTP(writer, request)
		return
	}

	ctx := request.Context()
	if _, found := RequestPathFromRequestContext(ctx); !found {
		ctx = context.WithValue(ctx, RequestPathContextKey, request.URL.Path)
	}
	ctx = context.WithValue(ctx, RouteContextKey, r.prefix)

	routed := request.WithContext(ctx)
	stripped := *request.URL
	stripped.Path = relativePath(r.prefix, request.URL.Path)
	stripped.RawPath = ""
	routed.URL = &stripped

	r.target.ServeHTTP(writer, routed)
}
