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

/*
Package xmount mounts and unmounts groups of http.Handler's on a shared set of listeners at runtime, without
restarting the listeners.

Basics

A ServerController owns the listeners (one http.Server per enabled protocol per configured address, see
ServerConfig) and a single PathRouter that all of them serve. Its lifecycle is Unconfigured -> Stopped <-> Started;
Configure while Started tears the listeners down and rebuilds them from the new ServerConfig.

Handlers are grouped into Context's, identified by a ContextId. Each Context holds an ordered list of Mapping's,
every Mapping binding one or more path-prefix url patterns ("/api/*") to a handler. While a Context is started each
prefix is bound in the PathRouter with the Context as its target. Mappings can be added and removed at any time;
the change is visible in the router before AddMapping or RemoveMapping returns.

A Context compiles its mappings into one http.Handler (by default a chi.Mux, see ChiCompiler) on the first
request after a change. Requests read the compiled handler through an atomic reference and only the request that
finds it missing builds it, under the Context's lock. A failed compilation fails only the request that triggered
it (500) and is retried by the next one.

Handlers always see the full request path. The PathRouter strips the matched prefix while routing and the Context
restores it before dispatching.

Configuration

Instance and InstanceConfig drive a ServerController from a configuration map (default sections `web` and
`contexts`). Mappings declared in configuration name a binding which is resolved through a Registry of
HandlerFactory's; the `resources` binding serves the ResourceLookup of the context.
*/
package xmount
