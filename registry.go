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
	"fmt"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"
)

// HandlerFactory creates the http.Handler for a Mapping that refers to it by binding rather than supplying a
// ready handler. New is invoked each time the owning Context compiles its mappings.
type HandlerFactory interface {
	Binding() string
	New(model *ContextModel, mapping *Mapping) (http.Handler, error)
}

// Registry describes a registry of binding to HandlerFactory registrations
type Registry interface {
	Add(factory HandlerFactory) error
	Get(binding string) HandlerFactory
}

// RegistryMap is a basic Registry implementation backed by a simple mapping of binding (string) to HandlerFactory
// instances. It is safe for concurrent use as Context's compile on request goroutines.
type RegistryMap struct {
	lock      sync.RWMutex
	factories map[string]HandlerFactory
}

// NewRegistryMap creates a new RegistryMap
func NewRegistryMap() *RegistryMap {
	return &RegistryMap{
		factories: map[string]HandlerFactory{},
	}
}

// Add adds a factory to the registry. Errors if a previous factory with the same binding is registered.
func (registry *RegistryMap) Add(factory HandlerFactory) error {
	logrus.Debugf("adding xmount handler factory with binding: %v", factory.Binding())

	registry.lock.Lock()
	defer registry.lock.Unlock()

	if _, ok := registry.factories[factory.Binding()]; ok {
		return fmt.Errorf("binding [%s] already registered", factory.Binding())
	}

	registry.factories[factory.Binding()] = factory

	return nil
}

// Get retrieves a factory based on a binding or nil if no factory for the binding is registered
func (registry *RegistryMap) Get(binding string) HandlerFactory {
	registry.lock.RLock()
	defer registry.lock.RUnlock()
	return registry.factories[binding]
}

// HandlerFactoryFunc adapts a function to a HandlerFactory
type HandlerFactoryFunc struct {
	Name    string
	NewFunc func(model *ContextModel, mapping *Mapping) (http.Handler, error)
}

func (f *HandlerFactoryFunc) Binding() string {
	return f.Name
}

func (f *HandlerFactoryFunc) New(model *ContextModel, mapping *Mapping) (http.Handler, error) {
	return f.NewFunc(model, mapping)
}
