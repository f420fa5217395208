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

	"github.com/go-chi/chi/v5"
	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

// HandlerCompiler turns the ordered Mapping's of a Context into a single http.Handler. Compile is called with the
// Context's lock held and the slice it receives must not be retained or modified. The returned handler receives
// requests with their original, unstripped path.
type HandlerCompiler interface {
	Compile(model *ContextModel, mappings []*Mapping) (http.Handler, error)
}

// HandlerCompilerFunc adapts a function to a HandlerCompiler
type HandlerCompilerFunc func(model *ContextModel, mappings []*Mapping) (http.Handler, error)

func (f HandlerCompilerFunc) Compile(model *ContextModel, mappings []*Mapping) (http.Handler, error) {
	return f(model, mappings)
}

// ChiCompiler is the default HandlerCompiler. Each Mapping's handler is resolved (directly or through the Registry
// by binding) and mounted on a chi.Mux for every one of its url patterns. When two mappings declare the same
// prefix the first declared mapping wins.
type ChiCompiler struct {
	Registry Registry
}

var _ HandlerCompiler = &ChiCompiler{}

func (compiler *ChiCompiler) Compile(model *ContextModel, mappings []*Mapping) (http.Handler, error) {
	router := chi.NewRouter()
	owners := map[string]*Mapping{}

	for _, mapping := range mappings {
		prefixes, err := mapping.prefixes()
		if err != nil {
			return nil, err
		}

		handler, err := compiler.resolve(model, mapping)
		if err != nil {
			return nil, errors.Wrapf(err, "could not create handler for mapping [%s]", mapping.Name)
		}
		handler = withMapping(model, mapping, handler)

		for _, prefix := range prefixes {
			if owner, ok := owners[prefix]; ok {
				pfxlog.Logger().Warnf("context [%s]: prefix [%s] of mapping [%s] is already served by mapping [%s], ignoring", model.Id, prefix, mapping.Name, owner.Name)
				continue
			}
			owners[prefix] = mapping

			if prefix == "/" {
				router.Handle("/*", handler)
			} else {
				router.Handle(prefix, handler)
				router.Handle(prefix+wildcardSuffix, handler)
			}
		}
	}

	router.NotFound(handler404)

	return router, nil
}

func (compiler *ChiCompiler) resolve(model *ContextModel, mapping *Mapping) (http.Handler, error) {
	if mapping.Handler != nil {
		return mapping.Handler, nil
	}

	if mapping.Binding == "" {
		return nil, errors.New("mapping supplies neither a handler nor a binding")
	}

	if compiler.Registry == nil {
		return nil, errors.Errorf("no registry available to resolve binding [%s]", mapping.Binding)
	}

	factory := compiler.Registry.Get(mapping.Binding)
	if factory == nil {
		return nil, errors.Errorf("binding [%s] has no associated factory registered", mapping.Binding)
	}

	handler, err := factory.New(model, mapping)
	if err != nil {
		return nil, err
	}

	if handler == nil {
		return nil, errors.Errorf("factory for binding [%s] returned a nil handler", mapping.Binding)
	}

	return handler, nil
}

// withMapping stores the Mapping and ContextModel on the request context for downstream handlers.
func withMapping(model *ContextModel, mapping *Mapping, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx := context.WithValue(request.Context(), MappingContextKey, mapping)
		ctx = context.WithValue(ctx, ContextModelContextKey, model)
		handler.ServeHTTP(writer, request.WithContext(ctx))
	})
}
