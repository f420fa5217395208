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
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/foundation/v2/concurrenz"
	"github.com/openziti/foundation/v2/debugz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/openziti/xmount"

type compiledHandler struct {
	handler http.Handler
}

// Context hosts the Mapping's of one ContextModel. While started, every prefix derived from its mappings is bound
// in the shared PathRouter with the Context as target.
//
// The mappings are compiled into a single http.Handler on the first request after any change. The compiled
// handler is published through an atomic reference: requests read it without locking and only take the Context's
// lock to build it when absent, re-checking after the lock is acquired so that a single compilation runs per
// invalidation. Mutations clear the reference under the same lock.
type Context struct {
	model    *ContextModel
	router   *PathRouter
	compiler HandlerCompiler
	metrics  *Metrics
	tracer   trace.Tracer

	lock     sync.Mutex
	mappings []*Mapping
	bound    map[string]int

	started   atomic.Bool
	destroyed atomic.Bool
	handler   concurrenz.AtomicValue[*compiledHandler]
}

var _ http.Handler = &Context{}

// NewContext creates a Context that binds its prefixes in router and compiles its mappings with compiler. A nil
// compiler defaults to a ChiCompiler without a Registry, which only supports mappings with ready handlers.
func NewContext(router *PathRouter, model *ContextModel, compiler HandlerCompiler) *Context {
	if compiler == nil {
		compiler = &ChiCompiler{}
	}

	return &Context{
		model:    model,
		router:   router,
		compiler: compiler,
		tracer:   otel.Tracer(tracerName),
		bound:    map[string]int{},
	}
}

func (c *Context) Id() ContextId {
	return c.model.Id
}

func (c *Context) Model() *ContextModel {
	return c.model
}

func (c *Context) IsStarted() bool {
	return c.started.Load()
}

// Mappings returns a copy of the current mappings in the order they were added.
func (c *Context) Mappings() []*Mapping {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]*Mapping(nil), c.mappings...)
}

// Start binds the prefixes of all current mappings. Calling Start on a started Context does nothing.
func (c *Context) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.destroyed.Load() {
		return illegalState("context [%s] has been destroyed", c.model.Id)
	}

	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	pfxlog.Logger().Debugf("starting context [%s] with %d mappings", c.model.Id, len(c.mappings))

	for _, mapping := range c.mappings {
		c.bindMapping(mapping)
	}
	c.invalidate()

	return nil
}

// Stop unbinds the prefixes of all current mappings. Calling Stop on a stopped Context does nothing.
func (c *Context) Stop() {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.started.CompareAndSwap(true, false) {
		return
	}

	pfxlog.Logger().Debugf("stopping context [%s]", c.model.Id)

	for _, mapping := range c.mappings {
		c.unbindMapping(mapping)
	}
	c.invalidate()
}

// Destroy releases the compiled handler. A destroyed Context answers every request with 404 and cannot be
// started again. Destroying a started Context is a caller error and is ignored.
func (c *Context) Destroy() {
	if !c.destroy() {
		pfxlog.Logger().Warnf("ignoring destroy of context [%s], it is still started", c.model.Id)
	}
}

// destroy marks the Context destroyed unless it is started, reporting whether it did.
func (c *Context) destroy() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.started.Load() {
		return false
	}

	c.destroyed.Store(true)
	c.invalidate()
	return true
}

// AddMapping appends mapping. Every url pattern must be a path-prefix pattern or a *ConfigurationError is
// returned and nothing changes. If the Context is started the mapping's prefixes are bound before AddMapping
// returns.
func (c *Context) AddMapping(mapping *Mapping) error {
	if mapping == nil {
		return &InvalidArgumentError{Argument: "mapping", Reason: "must not be nil"}
	}

	if _, err := mapping.prefixes(); err != nil {
		return err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.mappings = append(c.mappings, mapping)

	if c.started.Load() {
		c.bindMapping(mapping)
		c.invalidate()
	}

	return nil
}

// RemoveMapping removes mapping if present. If the Context is started the mapping's prefixes are unbound before
// RemoveMapping returns.
func (c *Context) RemoveMapping(mapping *Mapping) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i, current := range c.mappings {
		if current == mapping {
			c.mappings = append(c.mappings[:i:i], c.mappings[i+1:]...)
			if c.started.Load() {
				c.unbindMapping(mapping)
				c.invalidate()
			}
			return
		}
	}
}

func (c *Context) bindMapping(mapping *Mapping) {
	prefixes, _ := mapping.prefixes()
	for _, prefix := range prefixes {
		c.bound[prefix]++
		if c.bound[prefix] == 1 {
			c.router.Bind(prefix, c)
		}
	}
}

func (c *Context) unbindMapping(mapping *Mapping) {
	prefixes, _ := mapping.prefixes()
	for _, prefix := range prefixes {
		c.bound[prefix]--
		if c.bound[prefix] <= 0 {
			delete(c.bound, prefix)
			c.router.Unbind(prefix)
		}
	}
}

// invalidate must be called with lock held
func (c *Context) invalidate() {
	c.handler.Store(nil)
}

func (c *Context) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	ctx, span := c.tracer.Start(request.Context(), "xmount.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("xmount.context.id", string(c.model.Id)),
			attribute.String("xmount.route.prefix", RoutePrefixFromRequestContext(request.Context())),
		))
	defer span.End()

	handler, err := c.getHandler()
	if err != nil {
		pfxlog.Logger().WithError(err).Errorf("could not dispatch %s %s", request.Method, request.URL.Path)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.metrics.recordDispatch(c.model.Id, OutcomeFailed)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	if handler == nil {
		c.metrics.recordDispatch(c.model.Id, OutcomeUnavailable)
		handler404(writer, request)
		return
	}

	dispatched := request.WithContext(ctx)
	if path, ok := RequestPathFromRequestContext(ctx); ok {
		original := *request.URL
		original.Path = path
		original.RawPath = ""
		dispatched.URL = &original
	}

	c.metrics.recordDispatch(c.model.Id, OutcomeDispatched)
	handler.ServeHTTP(writer, dispatched)
}

// getHandler returns the compiled handler, compiling it if absent. A nil handler and nil error are returned for a
// destroyed Context.
func (c *Context) getHandler() (http.Handler, error) {
	if compiled := c.handler.Load(); compiled != nil {
		return compiled.handler, nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if compiled := c.handler.Load(); compiled != nil {
		return compiled.handler, nil
	}

	if c.destroyed.Load() {
		return nil, nil
	}

	handler, err := c.compile()
	c.metrics.recordCompilation(c.model.Id, err)
	if err != nil {
		return nil, &DeploymentError{ContextId: c.model.Id, Cause: err}
	}

	c.handler.Store(&compiledHandler{handler: handler})
	return handler, nil
}

func (c *Context) compile() (handler http.Handler, err error) {
	defer func() {
		if panicVal := recover(); panicVal != nil {
			pfxlog.Logger().Errorf("panic compiling context [%s]: %v\n%v", c.model.Id, panicVal, debugz.GenerateLocalStack())
			handler = nil
			err = fmt.Errorf("panic during compilation: %v", panicVal)
		}
	}()

	mappings := append([]*Mapping(nil), c.mappings...)
	handler, err = c.compiler.Compile(c.model, mappings)
	if err != nil {
		return nil, err
	}

	if handler == nil {
		return nil, fmt.Errorf("compiler returned no handler")
	}

	pfxlog.Logger().Debugf("compiled context [%s] with %d mappings", c.model.Id, len(mappings))
	return handler, nil
}
