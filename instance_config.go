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
	"errors"
	"fmt"
)

const (
	DefaultConfigSection   = "web"
	DefaultContextsSection = "contexts"
)

// InstanceConfig is the root configuration of an Instance: the ServerConfig found in Section and the
// ContextConfig's found in ContextsSection.
type InstanceConfig struct {
	SourceConfig map[interface{}]interface{}

	Section         string
	ContextsSection string

	ServerConfig *ServerConfig
	Contexts     []*ContextConfig

	enabled bool
}

// Parse parses a configuration map, looking for the server section and an optional array of contexts.
func (config *InstanceConfig) Parse(configMap map[interface{}]interface{}) error {
	config.SourceConfig = configMap

	if config.Section == "" {
		return errors.New("web section not specified for configuration")
	}

	if config.ContextsSection == "" {
		config.ContextsSection = DefaultContextsSection
	}

	if sectionVal, ok := configMap[config.Section]; ok {
		if sectionMap, ok := sectionVal.(map[interface{}]interface{}); ok {
			serverConfig := NewServerConfig()
			if err := serverConfig.Parse(sectionMap, config.Section); err != nil {
				return fmt.Errorf("error parsing web configuration [%s]: %v", config.Section, err)
			}
			config.ServerConfig = serverConfig
		} else {
			return fmt.Errorf("web section [%s] must be a map", config.Section)
		}
	} else {
		return fmt.Errorf("web section [%s] must be defined", config.Section)
	}

	if sectionVal, ok := configMap[config.ContextsSection]; ok {
		//treat section like an array of maps
		if sectionArrayVals, ok := sectionVal.([]interface{}); ok {
			for i, sectionArrayVal := range sectionArrayVals {
				if sectionMap, ok := sectionArrayVal.(map[interface{}]interface{}); ok {
					contextConfig := &ContextConfig{}
					if err := contextConfig.Parse(sectionMap); err != nil {
						return fmt.Errorf("error parsing context configuration [%s] at index [%d]: %v", config.ContextsSection, i, err)
					}
					config.Contexts = append(config.Contexts, contextConfig)
				} else {
					return fmt.Errorf("error parsing context configuration [%s] at index [%d]: not a map", config.ContextsSection, i)
				}
			}
		} else {
			return fmt.Errorf("contexts section [%s] must be an array", config.ContextsSection)
		}
	}

	return nil
}

// Validate uses a Registry to validate that all mapping bindings may be fulfilled and that every resource type
// has a provider. All other relevant InstanceConfig values are also validated.
func (config *InstanceConfig) Validate(registry Registry, providers map[string]ResourceProvider) error {
	if config.ServerConfig == nil {
		return errors.New("no server configuration parsed")
	}

	if err := config.ServerConfig.Validate(); err != nil {
		return fmt.Errorf("could not validate server at %s: %v", config.Section, err)
	}

	seen := map[ContextId]struct{}{}
	var errs []error
	for i, contextConfig := range config.Contexts {
		if err := contextConfig.Validate(registry); err != nil {
			errs = append(errs, fmt.Errorf("could not validate context at %s[%d]: %v", config.ContextsSection, i, err))
			continue
		}

		if _, ok := seen[contextConfig.Id]; ok {
			errs = append(errs, fmt.Errorf("duplicate context id [%s] at %s[%d]", contextConfig.Id, config.ContextsSection, i))
		}
		seen[contextConfig.Id] = struct{}{}

		if resourceType := contextConfig.ResourceType(); resourceType != "" {
			if _, ok := providers[resourceType]; !ok {
				errs = append(errs, fmt.Errorf("context [%s] uses resource type [%s] which has no provider", contextConfig.Id, resourceType))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	//enabled only after validation passes
	config.enabled = true

	return nil
}

// Enabled returns true/false on whether this configuration should be considered "enabled". Set to true after
// Validate passes.
func (config *InstanceConfig) Enabled() bool {
	return config.enabled
}
