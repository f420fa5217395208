/*
	Copyright NetFoundry, Inc.

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
	"sync"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// ResourceProvider creates a ResourceLookup from the `resources` section of a ContextConfig.
type ResourceProvider func(options map[interface{}]interface{}) (ResourceLookup, error)

// Instance drives a ServerController from configuration: LoadConfig parses and validates, Run configures and
// starts the controller and mounts every configured context, Shutdown reverses Run.
type Instance interface {
	Enabled() bool
	LoadConfig(cfgmap map[interface{}]interface{}) error
	Run() error
	Shutdown()
	GetRegistry() Registry
	GetController() *ServerController
	GetConfig() *InstanceConfig
}

// InstanceImpl is a basic implementation of Instance.
type InstanceImpl struct {
	Config            *InstanceConfig
	Registry          Registry
	Controller        *ServerController
	ResourceProviders map[string]ResourceProvider

	lock    sync.Mutex
	mounted []*Context
}

var _ Instance = &InstanceImpl{}

// NewDefaultInstance creates an InstanceImpl whose controller resolves bindings through registry. The resources
// binding and the dir resource provider are registered if absent.
func NewDefaultInstance(registry Registry, options ...ControllerOption) *InstanceImpl {
	if registry.Get(ResourcesBinding) == nil {
		if err := registry.Add(&ResourceHandlerFactory{}); err != nil {
			pfxlog.Logger().WithError(err).Warn("could not register resources binding")
		}
	}

	options = append([]ControllerOption{WithRegistry(registry)}, options...)

	return &InstanceImpl{
		Registry:   registry,
		Controller: NewServerController(options...),
		ResourceProviders: map[string]ResourceProvider{
			"dir": DirResourceProvider,
		},
		Config: &InstanceConfig{
			Section:         DefaultConfigSection,
			ContextsSection: DefaultContextsSection,
		},
	}
}

// GetRegistry returns the associated Registry
func (i *InstanceImpl) GetRegistry() Registry {
	return i.Registry
}

// GetController returns the associated ServerController
func (i *InstanceImpl) GetController() *ServerController {
	return i.Controller
}

// GetConfig returns the associated InstanceConfig
func (i *InstanceImpl) GetConfig() *InstanceConfig {
	return i.Config
}

// Enabled returns true/false on whether this instance has a validated configuration
func (i *InstanceImpl) Enabled() bool {
	return i.Config.Enabled()
}

// LoadConfig parses and validates cfgmap
func (i *InstanceImpl) LoadConfig(cfgmap map[interface{}]interface{}) error {
	if err := i.Config.Parse(cfgmap); err != nil {
		return err
	}

	//validate sets enabled flag to true on success
	if err := i.Config.Validate(i.Registry, i.ResourceProviders); err != nil {
		return err
	}

	return nil
}

// Run configures and starts the controller, then mounts and starts every configured context.
func (i *InstanceImpl) Run() error {
	if !i.Enabled() {
		return errors.New("instance configuration has not been loaded")
	}

	if err := i.Controller.Configure(i.Config.ServerConfig); err != nil {
		return err
	}

	if err := i.Controller.Start(); err != nil {
		return err
	}

	for _, contextConfig := range i.Config.Contexts {
		model := &ContextModel{
			Id:   contextConfig.Id,
			Name: contextConfig.Name,
		}

		if resourceType := contextConfig.ResourceType(); resourceType != "" {
			lookup, err := i.ResourceProviders[resourceType](contextConfig.Resources)
			if err != nil {
				return errors.Wrapf(err, "could not create resources for context [%s]", contextConfig.Id)
			}
			model.Resources = lookup
		}

		var mappings []*Mapping
		for _, mappingConfig := range contextConfig.Mappings {
			mappings = append(mappings, mappingConfig.NewMapping())
		}

		if _, err := i.Mount(model, mappings...); err != nil {
			return err
		}
	}

	return nil
}

// Mount adds mappings to the Context of model and starts it. The controller must be started.
func (i *InstanceImpl) Mount(model *ContextModel, mappings ...*Mapping) (*Context, error) {
	for _, mapping := range mappings {
		if err := i.Controller.AddHandler(mapping, model); err != nil {
			return nil, errors.Wrapf(err, "could not mount mapping [%s] in context [%s]", mapping.Name, model.Id)
		}
	}

	ctx, err := i.Controller.GetOrCreateContext(model)
	if err != nil {
		return nil, err
	}

	if err := ctx.Start(); err != nil {
		return nil, err
	}

	i.lock.Lock()
	known := false
	for _, existing := range i.mounted {
		known = known || existing == ctx
	}
	if !known {
		i.mounted = append(i.mounted, ctx)
	}
	i.lock.Unlock()

	pfxlog.Logger().Infof("mounted context [%s] with %d mappings", model.Id, len(ctx.Mappings()))

	return ctx, nil
}

// Shutdown stops and removes every mounted context and stops the controller
func (i *InstanceImpl) Shutdown() {
	i.lock.Lock()
	mounted := i.mounted
	i.mounted = nil
	i.lock.Unlock()

	for _, ctx := range mounted {
		ctx.Stop()
		if err := i.Controller.RemoveContext(ctx.Id()); err != nil {
			pfxlog.Logger().WithError(err).Warnf("could not remove context [%s]", ctx.Id())
		}
	}

	if i.Controller.IsConfigured() {
		if err := i.Controller.Stop(); err != nil {
			pfxlog.Logger().WithError(err).Error("error stopping server")
		}
	}
}
