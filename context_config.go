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

	"github.com/pkg/errors"
)

// MappingConfig represents a Mapping declared in configuration. The handler is always created by the
// HandlerFactory registered for Binding; Options are passed through to it untouched.
type MappingConfig struct {
	Name     string
	Patterns []string
	Binding  string
	Options  map[interface{}]interface{}
}

// Parse the configuration map for a MappingConfig.
func (mapping *MappingConfig) Parse(mappingConfigMap map[interface{}]interface{}) error {
	if nameInterface, ok := mappingConfigMap["name"]; ok {
		if name, ok := nameInterface.(string); ok {
			mapping.Name = name
		} else {
			return errors.New("name must be a string")
		}
	}

	if bindingInterface, ok := mappingConfigMap["binding"]; ok {
		if binding, ok := bindingInterface.(string); ok {
			mapping.Binding = binding
		} else {
			return errors.New("binding must be a string")
		}
	} else {
		return errors.New("binding is required")
	}

	if mapping.Name == "" {
		mapping.Name = mapping.Binding
	}

	if patternsInterface, ok := mappingConfigMap["patterns"]; ok {
		if patterns, ok := patternsInterface.([]interface{}); ok {
			for i, patternInterface := range patterns {
				if pattern, ok := patternInterface.(string); ok {
					mapping.Patterns = append(mapping.Patterns, pattern)
				} else {
					return fmt.Errorf("pattern at index [%d] must be a string", i)
				}
			}
		} else {
			return errors.New("patterns must be an array")
		}
	} else {
		return errors.New("patterns is required")
	}

	if optionsInterface, ok := mappingConfigMap["options"]; ok {
		if optionsMap, ok := optionsInterface.(map[interface{}]interface{}); ok {
			mapping.Options = optionsMap //leave to bindings to interpret further
		} else {
			return errors.New("options if declared must be a map")
		}
	} //no else optional

	return nil
}

// Validate this configuration object against the registry that will resolve its binding.
func (mapping *MappingConfig) Validate(registry Registry) error {
	if mapping.Binding == "" {
		return errors.New("binding must be specified")
	}

	if registry == nil || registry.Get(mapping.Binding) == nil {
		return fmt.Errorf("invalid binding %s", mapping.Binding)
	}

	if len(mapping.Patterns) == 0 {
		return errors.New("no patterns specified, must specify at least one")
	}

	if _, err := mapping.NewMapping().prefixes(); err != nil {
		return err
	}

	return nil
}

// NewMapping creates the Mapping described by this configuration.
func (mapping *MappingConfig) NewMapping() *Mapping {
	return &Mapping{
		Name:        mapping.Name,
		UrlPatterns: append([]string(nil), mapping.Patterns...),
		Binding:     mapping.Binding,
		Options:     mapping.Options,
	}
}

// ContextConfig represents a Context declared in configuration along with its mappings and, optionally, the
// resources it serves.
type ContextConfig struct {
	Id        ContextId
	Name      string
	Resources map[interface{}]interface{}
	Mappings  []*MappingConfig
}

// Parse the configuration map for a ContextConfig.
func (config *ContextConfig) Parse(contextConfigMap map[interface{}]interface{}) error {
	if idInterface, ok := contextConfigMap["id"]; ok {
		if id, ok := idInterface.(string); ok {
			config.Id = ContextId(id)
		} else {
			return errors.New("id must be a string")
		}
	} else {
		return errors.New("id is required")
	}

	config.Name = string(config.Id)
	if nameInterface, ok := contextConfigMap["name"]; ok {
		if name, ok := nameInterface.(string); ok {
			config.Name = name
		} else {
			return errors.New("name must be a string")
		}
	}

	if resourcesInterface, ok := contextConfigMap["resources"]; ok {
		if resourcesMap, ok := resourcesInterface.(map[interface{}]interface{}); ok {
			config.Resources = resourcesMap
		} else {
			return errors.New("resources if declared must be a map")
		}
	}

	if mappingsInterface, ok := contextConfigMap["mappings"]; ok {
		if mappings, ok := mappingsInterface.([]interface{}); ok {
			for i, mappingInterface := range mappings {
				if mappingMap, ok := mappingInterface.(map[interface{}]interface{}); ok {
					mapping := &MappingConfig{}
					if err := mapping.Parse(mappingMap); err != nil {
						return fmt.Errorf("error parsing mapping configuration at index [%d]: %v", i, err)
					}
					config.Mappings = append(config.Mappings, mapping)
				} else {
					return fmt.Errorf("error parsing mapping configuration at index [%d]: not a map", i)
				}
			}
		} else {
			return errors.New("mappings must be an array")
		}
	}

	return nil
}

// ResourceType returns the `type` of the resources section, or "" if there is none.
func (config *ContextConfig) ResourceType() string {
	if config.Resources == nil {
		return ""
	}
	resourceType, _ := config.Resources["type"].(string)
	return resourceType
}

// Validate this configuration object.
func (config *ContextConfig) Validate(registry Registry) error {
	if config.Id == "" {
		return errors.New("id must be specified")
	}

	if config.Resources != nil && config.ResourceType() == "" {
		return errors.New("resources must declare a type")
	}

	for i, mapping := range config.Mappings {
		if err := mapping.Validate(registry); err != nil {
			return fmt.Errorf("invalid mapping at index [%d]: %v", i, err)
		}
	}

	return nil
}
