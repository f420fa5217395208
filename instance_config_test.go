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
	"testing"

	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) Registry {
	registry := NewRegistryMap()
	require.NoError(t, registry.Add(&ResourceHandlerFactory{}))
	return registry
}

func testProviders() map[string]ResourceProvider {
	return map[string]ResourceProvider{"dir": DirResourceProvider}
}

func testInstanceConfigMap() map[interface{}]interface{} {
	return map[interface{}]interface{}{
		"web": map[interface{}]interface{}{
			"listeningAddresses": []interface{}{"127.0.0.1"},
			"httpPort":           0,
		},
		"contexts": []interface{}{
			map[interface{}]interface{}{
				"id":   "site",
				"name": "static site",
				"resources": map[interface{}]interface{}{
					"type": "dir",
					"path": "/srv/www",
				},
				"mappings": []interface{}{
					map[interface{}]interface{}{
						"name":     "pages",
						"binding":  "resources",
						"patterns": []interface{}{"/*"},
						"options":  map[interface{}]interface{}{"cache": true},
					},
				},
			},
		},
	}
}

func TestMappingConfig(t *testing.T) {
	t.Run("parses and builds a mapping", func(t *testing.T) {
		req := require.New(t)

		config := &MappingConfig{}
		req.NoError(config.Parse(map[interface{}]interface{}{
			"binding":  "resources",
			"patterns": []interface{}{"/a/*", "/b/*"},
		}))
		req.Equal("resources", config.Name)
		req.NoError(config.Validate(testRegistry(t)))

		mapping := config.NewMapping()
		req.Equal("resources", mapping.Binding)
		req.Equal([]string{"/a/*", "/b/*"}, mapping.UrlPatterns)
		req.Nil(mapping.Handler)
	})

	t.Run("binding and patterns are required", func(t *testing.T) {
		req := require.New(t)

		req.Error((&MappingConfig{}).Parse(map[interface{}]interface{}{"patterns": []interface{}{"/*"}}))
		req.Error((&MappingConfig{}).Parse(map[interface{}]interface{}{"binding": "resources"}))
		req.Error((&MappingConfig{}).Parse(map[interface{}]interface{}{"binding": "resources", "patterns": "/*"}))
		req.Error((&MappingConfig{}).Parse(map[interface{}]interface{}{"binding": "resources", "patterns": []interface{}{7}}))
		req.Error((&MappingConfig{}).Parse(map[interface{}]interface{}{"binding": "resources", "patterns": []interface{}{"/*"}, "options": "x"}))
	})

	t.Run("unknown bindings do not validate", func(t *testing.T) {
		req := require.New(t)

		config := &MappingConfig{Binding: "unknown", Patterns: []string{"/*"}}
		req.Error(config.Validate(testRegistry(t)))
		req.Error(config.Validate(nil))
	})

	t.Run("invalid patterns do not validate", func(t *testing.T) {
		req := require.New(t)

		config := &MappingConfig{Binding: ResourcesBinding, Patterns: []string{"/api"}}
		err := config.Validate(testRegistry(t))
		req.True(IsConfigurationError(err))

		config = &MappingConfig{Binding: ResourcesBinding}
		req.Error(config.Validate(testRegistry(t)))
	})
}

func TestContextConfig(t *testing.T) {
	t.Run("id is required", func(t *testing.T) {
		req := require.New(t)
		req.Error((&ContextConfig{}).Parse(map[interface{}]interface{}{}))
		req.Error((&ContextConfig{}).Parse(map[interface{}]interface{}{"id": 1}))
	})

	t.Run("name defaults to the id", func(t *testing.T) {
		req := require.New(t)

		config := &ContextConfig{}
		req.NoError(config.Parse(map[interface{}]interface{}{"id": "api"}))
		req.Equal(ContextId("api"), config.Id)
		req.Equal("api", config.Name)
		req.Equal("", config.ResourceType())
	})

	t.Run("resources require a type", func(t *testing.T) {
		req := require.New(t)

		config := &ContextConfig{}
		req.NoError(config.Parse(map[interface{}]interface{}{
			"id":        "site",
			"resources": map[interface{}]interface{}{"path": "/srv"},
		}))
		req.Error(config.Validate(testRegistry(t)))
	})

	t.Run("invalid mappings fail", func(t *testing.T) {
		req := require.New(t)

		req.Error((&ContextConfig{}).Parse(map[interface{}]interface{}{"id": "site", "mappings": "x"}))
		req.Error((&ContextConfig{}).Parse(map[interface{}]interface{}{"id": "site", "mappings": []interface{}{"x"}}))
		req.Error((&ContextConfig{}).Parse(map[interface{}]interface{}{"id": "site", "resources": "dir"}))
	})
}

func TestInstanceConfig(t *testing.T) {
	t.Run("parses the web and contexts sections", func(t *testing.T) {
		req := require.New(t)

		config := &InstanceConfig{Section: DefaultConfigSection}
		req.NoError(config.Parse(testInstanceConfigMap()))
		req.NoError(config.Validate(testRegistry(t), testProviders()))
		req.True(config.Enabled())

		req.Equal(0, config.ServerConfig.HttpPort)
		req.Len(config.Contexts, 1)

		site := config.Contexts[0]
		req.Equal(ContextId("site"), site.Id)
		req.Equal("static site", site.Name)
		req.Equal("dir", site.ResourceType())
		req.Len(site.Mappings, 1)
		req.Equal("pages", site.Mappings[0].Name)
		req.Equal(true, site.Mappings[0].Options["cache"])
	})

	t.Run("the web section is required", func(t *testing.T) {
		req := require.New(t)

		cfgmap := testInstanceConfigMap()
		delete(cfgmap, "web")

		config := &InstanceConfig{Section: DefaultConfigSection}
		req.Error(config.Parse(cfgmap))
	})

	t.Run("a section must be named", func(t *testing.T) {
		req := require.New(t)
		req.Error((&InstanceConfig{}).Parse(testInstanceConfigMap()))
	})

	t.Run("contexts must be an array", func(t *testing.T) {
		req := require.New(t)

		cfgmap := testInstanceConfigMap()
		cfgmap["contexts"] = map[interface{}]interface{}{}

		config := &InstanceConfig{Section: DefaultConfigSection}
		req.Error(config.Parse(cfgmap))
	})

	t.Run("duplicate context ids do not validate", func(t *testing.T) {
		req := require.New(t)

		cfgmap := testInstanceConfigMap()
		contexts := cfgmap["contexts"].([]interface{})
		cfgmap["contexts"] = append(contexts, contexts[0])

		config := &InstanceConfig{Section: DefaultConfigSection}
		req.NoError(config.Parse(cfgmap))

		err := config.Validate(testRegistry(t), testProviders())
		req.Error(err)
		req.Contains(err.Error(), "duplicate context id [site]")
		req.False(config.Enabled())
	})

	t.Run("resource types need a provider", func(t *testing.T) {
		req := require.New(t)

		config := &InstanceConfig{Section: DefaultConfigSection}
		req.NoError(config.Parse(testInstanceConfigMap()))

		err := config.Validate(testRegistry(t), map[string]ResourceProvider{})
		req.Error(err)
		req.Contains(err.Error(), "resource type [dir]")
	})

	t.Run("invalid server configuration does not validate", func(t *testing.T) {
		req := require.New(t)

		cfgmap := testInstanceConfigMap()
		cfgmap["web"].(map[interface{}]interface{})["httpPort"] = 99999

		config := &InstanceConfig{Section: DefaultConfigSection}
		req.NoError(config.Parse(cfgmap))
		req.Error(config.Validate(testRegistry(t), testProviders()))
	})
}
