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
	"net/http"
	"strings"
)

const wildcardSuffix = "/*"

// ContextId identifies a hosting context. Two ContextModel's with the same ContextId address the same Context.
type ContextId string

// ContextModel describes a hosting context: a group of Mapping's that share one lifecycle.
type ContextModel struct {
	Id   ContextId
	Name string

	// Resources backs handlers created by ServerController.CreateResourceHandler. Optional.
	Resources ResourceLookup
}

// Mapping binds a set of path-prefix url patterns (e.g. "/api/*") to a handler. The handler is either supplied
// ready to use via Handler or is created at compile time by the HandlerFactory registered for Binding.
//
// Mapping's are compared by identity: RemoveMapping must be given the same *Mapping that was added.
type Mapping struct {
	Name        string
	UrlPatterns []string
	Handler     http.Handler
	Binding     string
	Options     map[interface{}]interface{}
}

// prefixes returns the router prefixes derived from the mapping's url patterns or a ConfigurationError for the
// first pattern that is not a path-prefix pattern.
func (mapping *Mapping) prefixes() ([]string, error) {
	result := make([]string, 0, len(mapping.UrlPatterns))
	for _, pattern := range mapping.UrlPatterns {
		prefix, err := patternPrefix(pattern)
		if err != nil {
			return nil, &ConfigurationError{Mapping: mapping.Name, Pattern: pattern}
		}
		result = append(result, prefix)
	}
	return result, nil
}

type invalidPatternError string

func (e invalidPatternError) Error() string {
	return "not a path-prefix pattern: " + string(e)
}

// patternPrefix converts "/api/*" to "/api" and "/*" to "/". Prefixes are literal: "*", "{" and "}" are
// rejected as they carry meaning in chi route patterns.
func patternPrefix(pattern string) (string, error) {
	if !strings.HasSuffix(pattern, wildcardSuffix) || !strings.HasPrefix(pattern, "/") {
		return "", invalidPatternError(pattern)
	}

	prefix := strings.TrimSuffix(pattern, wildcardSuffix)
	if strings.ContainsAny(prefix, "*{}") {
		return "", invalidPatternError(pattern)
	}

	return normalizePrefix(prefix), nil
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimSuffix(prefix, "/")
	}
	return prefix
}
