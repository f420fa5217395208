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
	"net"
	"net/http"
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// ControllerOption configures a ServerController
type ControllerOption func(controller *ServerController)

// WithCompiler sets the HandlerCompiler used by every Context the controller creates.
func WithCompiler(compiler HandlerCompiler) ControllerOption {
	return func(controller *ServerController) {
		controller.compiler = compiler
	}
}

// WithRegistry makes Context's compile with a ChiCompiler that resolves bindings through registry.
func WithRegistry(registry Registry) ControllerOption {
	return func(controller *ServerController) {
		controller.compiler = &ChiCompiler{Registry: registry}
	}
}

// WithMetrics records controller and Context activity in metrics.
func WithMetrics(metrics *Metrics) ControllerOption {
	return func(controller *ServerController) {
		controller.metrics = metrics
	}
}

// ServerController owns a single set of listeners, the PathRouter they serve and the Context's mounted on it.
// The lifecycle is Unconfigured -> Stopped <-> Started. All operations except the listener set maintenance are
// serialized by one lock; none of them are on the request path.
type ServerController struct {
	OnHandlerPanic func(writer http.ResponseWriter, request *http.Request, panicVal interface{})

	lock      sync.Mutex
	state     ServerState
	config    *ServerConfig
	server    *Server
	router    *PathRouter
	contexts  map[ContextId]*Context
	listeners listenerSet
	compiler  HandlerCompiler
	metrics   *Metrics
}

// NewServerController creates an Unconfigured ServerController
func NewServerController(options ...ControllerOption) *ServerController {
	controller := &ServerController{
		state:    Unconfigured,
		router:   NewPathRouter(),
		contexts: map[ContextId]*Context{},
	}

	for _, option := range options {
		option(controller)
	}

	if controller.compiler == nil {
		controller.compiler = &ChiCompiler{}
	}

	return controller
}

// Configure stores config. The first call moves the controller from Unconfigured to Stopped and emits
// EventConfigured. While Started the listeners are fully shut down and rebuilt from config before Configure
// returns. While Stopped config is only stored.
func (controller *ServerController) Configure(config *ServerConfig) error {
	if config == nil {
		return &InvalidArgumentError{Argument: "config", Reason: "must not be nil"}
	}

	if err := config.Validate(); err != nil {
		return &InvalidArgumentError{Argument: "config", Reason: err.Error()}
	}

	controller.lock.Lock()
	defer controller.lock.Unlock()

	pfxlog.Logger().Debugf("configuring server [%s] in state %s", config.Name, controller.state)

	controller.config = config

	switch controller.state {
	case Unconfigured:
		controller.state = Stopped
		controller.notifyListeners(EventConfigured)
	case Started:
		if err := controller.doStop(); err != nil {
			pfxlog.Logger().WithError(err).Warn("error shutting down listeners during reconfiguration")
		}
		if err := controller.doStart(); err != nil {
			controller.state = Stopped
			controller.notifyListeners(EventStopped)
			return errors.Wrap(err, "unable to restart server with new configuration")
		}
	}

	return nil
}

// Start builds the listeners from the current configuration and starts serving the PathRouter on them. The
// controller must be Stopped.
func (controller *ServerController) Start() error {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	pfxlog.Logger().Debug("starting server")

	if err := controller.assertState(Stopped); err != nil {
		return err
	}

	if err := controller.doStart(); err != nil {
		return err
	}

	controller.state = Started
	controller.notifyListeners(EventStarted)

	return nil
}

// Stop shuts down the listeners if Started. EventStopped is emitted whenever the controller is configured, even if
// it was already stopped.
func (controller *ServerController) Stop() error {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	pfxlog.Logger().Debug("stopping server")

	if err := controller.assertNotState(Unconfigured); err != nil {
		return err
	}

	var err error
	if controller.state == Started {
		err = controller.doStop()
		controller.state = Stopped
	}

	controller.notifyListeners(EventStopped)

	return err
}

func (controller *ServerController) doStart() error {
	server := NewServer(controller.config, controller.router)
	server.OnHandlerPanic = controller.OnHandlerPanic

	if err := server.Start(); err != nil {
		return err
	}

	controller.server = server
	return nil
}

func (controller *ServerController) doStop() error {
	if controller.server == nil {
		return nil
	}

	timeout := controller.server.ServerConfig.Options.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := controller.server.Shutdown(ctx)
	controller.server = nil

	return err
}

func (controller *ServerController) State() ServerState {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.state
}

func (controller *ServerController) IsStarted() bool {
	return controller.State() == Started
}

func (controller *ServerController) IsConfigured() bool {
	return controller.State() != Unconfigured
}

// GetConfiguration returns the current configuration or nil if Unconfigured
func (controller *ServerController) GetConfiguration() *ServerConfig {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.config
}

// GetHttpPort returns the configured plain HTTP port
func (controller *ServerController) GetHttpPort() (int, error) {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	if controller.config == nil {
		return 0, illegalState("not configured")
	}
	return controller.config.HttpPort, nil
}

// GetHttpSecurePort returns the configured HTTPS port
func (controller *ServerController) GetHttpSecurePort() (int, error) {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	if controller.config == nil {
		return 0, illegalState("not configured")
	}
	return controller.config.HttpsPort, nil
}

// ListenAddresses returns the addresses the controller is listening on, or nil when not Started.
func (controller *ServerController) ListenAddresses() []net.Addr {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	if controller.server == nil {
		return nil
	}
	return controller.server.Addresses()
}

// Router returns the PathRouter shared by all Context's
func (controller *ServerController) Router() *PathRouter {
	return controller.router
}

// AddListener registers listener for state transition events. Listeners are notified synchronously while the
// controller lock is held: a listener that calls back into the controller deadlocks. A panicking listener
// prevents the remaining listeners from being notified and propagates to the caller of the transition.
func (controller *ServerController) AddListener(listener ServerListener) error {
	if listener == nil {
		return &InvalidArgumentError{Argument: "listener", Reason: "must not be nil"}
	}
	controller.listeners.add(listener)
	return nil
}

func (controller *ServerController) RemoveListener(listener ServerListener) {
	controller.listeners.remove(listener)
}

func (controller *ServerController) notifyListeners(event ServerEvent) {
	controller.metrics.recordEvent(event)
	controller.listeners.notify(event)
}

// GetOrCreateContext returns the Context for model.Id, creating it if none exists. Concurrent calls for the same
// id always return the same Context. The controller must be Started.
func (controller *ServerController) GetOrCreateContext(model *ContextModel) (*Context, error) {
	if model == nil {
		return nil, &InvalidArgumentError{Argument: "model", Reason: "must not be nil"}
	}

	controller.lock.Lock()
	defer controller.lock.Unlock()

	if err := controller.assertState(Started); err != nil {
		return nil, err
	}

	return controller.findOrCreateContext(model), nil
}

// GetContext returns the Context registered for id, or nil.
func (controller *ServerController) GetContext(id ContextId) *Context {
	controller.lock.Lock()
	defer controller.lock.Unlock()
	return controller.contexts[id]
}

// RemoveContext removes the Context registered for id and destroys it. The Context must already be stopped by its
// owner: RemoveContext does not stop it and returns an *IllegalStateError, leaving it registered, if it is started.
func (controller *ServerController) RemoveContext(id ContextId) error {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	if err := controller.assertNotState(Unconfigured); err != nil {
		return err
	}

	ctx, found := controller.contexts[id]
	if !found {
		return &NotFoundError{Kind: "context", Id: string(id)}
	}

	if !ctx.destroy() {
		return illegalState("context [%s] is started, stop it before removing it", id)
	}

	delete(controller.contexts, id)
	controller.metrics.setContexts(len(controller.contexts))

	pfxlog.Logger().Debugf("removed context [%s]", id)

	return nil
}

func (controller *ServerController) findOrCreateContext(model *ContextModel) *Context {
	if ctx, found := controller.contexts[model.Id]; found {
		return ctx
	}

	ctx := NewContext(controller.router, model, controller.compiler)
	ctx.metrics = controller.metrics
	controller.contexts[model.Id] = ctx
	controller.metrics.setContexts(len(controller.contexts))

	pfxlog.Logger().Debugf("created context [%s]", model.Id)

	return ctx
}

// AddHandler adds mapping to the Context of model, creating the Context if needed. Before Start the mapping is
// only recorded; it becomes routable once the Context is started.
func (controller *ServerController) AddHandler(mapping *Mapping, model *ContextModel) error {
	if mapping == nil {
		return &InvalidArgumentError{Argument: "mapping", Reason: "must not be nil"}
	}
	if model == nil {
		return &InvalidArgumentError{Argument: "model", Reason: "must not be nil"}
	}

	controller.lock.Lock()
	defer controller.lock.Unlock()

	if err := controller.assertNotState(Unconfigured); err != nil {
		return err
	}

	ctx := controller.findOrCreateContext(model)
	if err := ctx.AddMapping(mapping); err != nil {
		return errors.Wrap(err, "unable to add handler")
	}

	return nil
}

// RemoveHandler removes mapping from the Context registered for id. Unknown contexts are ignored. The controller
// must be Started.
func (controller *ServerController) RemoveHandler(mapping *Mapping, id ContextId) error {
	controller.lock.Lock()
	defer controller.lock.Unlock()

	if err := controller.assertState(Started); err != nil {
		return err
	}

	if ctx, found := controller.contexts[id]; found {
		ctx.RemoveMapping(mapping)
	}

	return nil
}

// CreateResourceHandler returns a handler that serves the resources of model. alias and name identify the
// registration in log output only.
func (controller *ServerController) CreateResourceHandler(model *ContextModel, alias, name string) http.Handler {
	pfxlog.Logger().Debugf("creating resource handler [%s] for alias [%s] in context [%s]", name, alias, model.Id)
	return NewResourceHandler(model.Resources)
}

func (controller *ServerController) assertState(state ServerState) error {
	if controller.state != state {
		return illegalState("state is %s but should be %s", controller.state, state)
	}
	return nil
}

func (controller *ServerController) assertNotState(state ServerState) error {
	if controller.state == state {
		return illegalState("state should not be %s", controller.state)
	}
	return nil
}
