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

import "context"

type ContextKey string

const (
	ContextModelContextKey = ContextKey("xmount.ContextModel.ContextKey")
	MappingContextKey      = ContextKey("xmount.Mapping.ContextKey")
	RequestPathContextKey  = ContextKey("xmount.RequestPath.ContextKey")
	RouteContextKey        = ContextKey("xmount.Route.ContextKey")
)

// ContextModelFromRequestContext is a utility function to retrieve the *ContextModel of the Context a request was
// dispatched to during downstream http.Handler processing.
func ContextModelFromRequestContext(ctx context.Context) *ContextModel {
	if val := ctx.Value(ContextModelContextKey); val != nil {
		if model, ok := val.(*ContextModel); ok {
			return model
		}
	}
	return nil
}

// MappingFromRequestContext is a utility function to retrieve the *Mapping whose handler is serving the request.
func MappingFromRequestContext(ctx context.Context) *Mapping {
	if val := ctx.Value(MappingContextKey); val != nil {
		if mapping, ok := val.(*Mapping); ok {
			return mapping
		}
	}
	return nil
}

// RequestPathFromRequestContext returns the original, unstripped request path recorded by the PathRouter. The
// second return value is false if the request did not pass through a PathRouter.
func RequestPathFromRequestContext(ctx context.Context) (string, bool) {
	if val := ctx.Value(RequestPathContextKey); val != nil {
		if path, ok := val.(string); ok {
			return path, true
		}
	}
	return "", false
}

// RoutePrefixFromRequestContext returns the router prefix that matched the request.
func RoutePrefixFromRequestContext(ctx context.Context) string {
	if val := ctx.Value(RouteContextKey); val != nil {
		if prefix, ok := val.(string); ok {
			return prefix
		}
	}
	return ""
}
