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

	"github.com/michaelquigley/pfxlog"
	"github.com/openziti/identity"
	"github.com/pkg/errors"
)

const (
	DefaultServerName = "xmount"
	DefaultHttpPort   = 8080
	DefaultHttpsPort  = 8443
)

// ServerConfig is the configuration consumed by ServerController to build its listeners. The controller never
// modifies a ServerConfig it has been given.
type ServerConfig struct {
	Name               string
	ListeningAddresses []*AddressConfig
	HttpPort           int
	HttpsPort          int
	Options            Options

	// Identity supplies the TLS material for addresses with Https enabled.
	Identity identity.Identity
}

// NewServerConfig returns a ServerConfig with default ports and options and no addresses.
func NewServerConfig() *ServerConfig {
	config := &ServerConfig{
		Name:      DefaultServerName,
		HttpPort:  DefaultHttpPort,
		HttpsPort: DefaultHttpsPort,
	}
	config.Options.Default()
	return config
}

// Parse parses a configuration map to set all relevant ServerConfig values. Values not present keep the defaults
// of NewServerConfig.
func (config *ServerConfig) Parse(configMap map[interface{}]interface{}, pathContext string) error {
	if config.Name == "" {
		config.Name = DefaultServerName
	}
	if config.Options.ShutdownTimeout == 0 {
		config.Options.Default()
	}

	if nameInterface, ok := configMap["name"]; ok {
		if name, ok := nameInterface.(string); ok {
			config.Name = name
		} else {
			return errors.New("name is required to be a string")
		}
	}

	if addressesInterface, ok := configMap["listeningAddresses"]; ok {
		if addressArray, ok := addressesInterface.([]interface{}); ok {
			for i, addressInterface := range addressArray {
				address := &AddressConfig{}
				if err := address.Parse(addressInterface); err != nil {
					return errors.Wrapf(err, "error parsing listening address at index [%d]", i)
				}
				config.ListeningAddresses = append(config.ListeningAddresses, address)
			}
		} else {
			return errors.New("listeningAddresses must be an array")
		}
	} else {
		return errors.New("listeningAddresses is required")
	}

	if portInterface, ok := configMap["httpPort"]; ok {
		port, err := toInt(portInterface)
		if err != nil {
			return errors.Wrap(err, "invalid httpPort")
		}
		config.HttpPort = port
	}

	if portInterface, ok := configMap["httpsPort"]; ok {
		port, err := toInt(portInterface)
		if err != nil {
			return errors.Wrap(err, "invalid httpsPort")
		}
		config.HttpsPort = port
	}

	if identityInterface, ok := configMap["identity"]; ok {
		if identityMap, ok := identityInterface.(map[interface{}]interface{}); ok {
			if identityConfig, err := parseIdentityConfig(identityMap, pathContext+".identity"); err == nil {
				config.Identity, err = identity.LoadIdentity(*identityConfig)
				if err != nil {
					return fmt.Errorf("error loading identity: %v", err)
				}

				if err := config.Identity.WatchFiles(); err != nil {
					pfxlog.Logger().Warnf("could not enable file watching on server identity: %v", err)
				}
			} else {
				return fmt.Errorf("error parsing identity section: %v", err)
			}
		} else {
			return errors.New("identity section must be a map if defined")
		}
	}

	if optionsInterface, ok := configMap["options"]; ok {
		if optionMap, ok := optionsInterface.(map[interface{}]interface{}); ok {
			if err := config.Options.Parse(optionMap); err != nil {
				return fmt.Errorf("error parsing options section: %v", err)
			}
		} else {
			return errors.New("options section must be a map if defined")
		}
	}

	return nil
}

// Validate all ServerConfig values
func (config *ServerConfig) Validate() error {
	if len(config.ListeningAddresses) == 0 {
		return errors.New("no listening addresses specified, must specify at least one")
	}

	for i, address := range config.ListeningAddresses {
		if address == nil {
			return errors.Errorf("a nil listening address was processed at index [%d]", i)
		}

		if err := address.Validate(); err != nil {
			return errors.Wrapf(err, "invalid listening address at index [%d]", i)
		}

		if address.Http {
			if err := validateHostPort(address.ListenAddress(config.HttpPort)); err != nil {
				return errors.Wrapf(err, "invalid http address at index [%d]", i)
			}
		}

		if address.Https {
			if err := validateHostPort(address.ListenAddress(config.HttpsPort)); err != nil {
				return errors.Wrapf(err, "invalid https address at index [%d]", i)
			}
		}
	}

	if config.HttpsEnabled() && config.Identity == nil {
		return errors.New("https is enabled but no identity is configured")
	}

	return config.Options.Validate()
}

// HttpEnabled returns true if any address listens for plain HTTP
func (config *ServerConfig) HttpEnabled() bool {
	for _, address := range config.ListeningAddresses {
		if address.Http {
			return true
		}
	}
	return false
}

// HttpsEnabled returns true if any address listens for HTTPS
func (config *ServerConfig) HttpsEnabled() bool {
	for _, address := range config.ListeningAddresses {
		if address.Https {
			return true
		}
	}
	return false
}

// BindPoints returns one BindPoint per enabled protocol per listening address.
func (config *ServerConfig) BindPoints() []BindPoint {
	var result []BindPoint
	for _, address := range config.ListeningAddresses {
		if address.Http {
			result = append(result, &plainBindPoint{address: address.ListenAddress(config.HttpPort)})
		}
		if address.Https {
			result = append(result, &tlsBindPoint{address: address.ListenAddress(config.HttpsPort)})
		}
	}
	return result
}

func toInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, errors.Errorf("value %v is not an integer", v)
		}
		return int(v), nil
	}
	return 0, errors.Errorf("value %v is not an integer", val)
}
