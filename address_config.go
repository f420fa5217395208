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
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// AddressConfig is one listening host of a ServerConfig and the protocols enabled on it. Plain HTTP listens on
// ServerConfig.HttpPort, HTTPS on ServerConfig.HttpsPort.
type AddressConfig struct {
	Host  string
	Http  bool
	Https bool
}

// Parse the configuration for an AddressConfig. The value is either a host string, which enables plain HTTP only,
// or a map with the keys host, http and https.
func (address *AddressConfig) Parse(config interface{}) error {
	if host, ok := config.(string); ok {
		address.Host = host
		address.Http = true
		return nil
	}

	configMap, ok := config.(map[interface{}]interface{})
	if !ok {
		return errors.New("address must be a string or a map")
	}

	if hostVal, ok := configMap["host"]; ok {
		if host, ok := hostVal.(string); ok {
			address.Host = host
		} else {
			return errors.New("could not use value for host, not a string")
		}
	} else {
		return errors.New("host is required")
	}

	address.Http = true
	if httpVal, ok := configMap["http"]; ok {
		if enabled, ok := httpVal.(bool); ok {
			address.Http = enabled
		} else {
			return errors.New("could not use value for http, not a bool")
		}
	}

	if httpsVal, ok := configMap["https"]; ok {
		if enabled, ok := httpsVal.(bool); ok {
			address.Https = enabled
		} else {
			return errors.New("could not use value for https, not a bool")
		}
	}

	return nil
}

// Validate this configuration object.
func (address *AddressConfig) Validate() error {
	if strings.TrimSpace(address.Host) == "" {
		return errors.New("host must not be an empty string or unspecified")
	}

	if strings.ContainsAny(address.Host, " /") {
		return errors.Errorf("invalid host [%s]", address.Host)
	}

	if !address.Http && !address.Https {
		return errors.Errorf("address [%s] enables neither http nor https", address.Host)
	}

	return nil
}

// ListenAddress returns <host>:<port>
func (address *AddressConfig) ListenAddress(port int) string {
	return net.JoinHostPort(address.Host, strconv.Itoa(port))
}

func validateHostPort(address string) error {
	address = strings.TrimSpace(address)

	if address == "" {
		return errors.New("must not be an empty string or unspecified")
	}

	host, port, err := net.SplitHostPort(address)

	if err != nil {
		return errors.Errorf("could not split host and port: %v", err)
	}

	if host == "" {
		return errors.New("host must be specified")
	}

	if port == "" {
		return errors.New("port must be specified")
	}

	if err := validatePort(port); err != nil {
		return err
	}

	return nil
}

// validatePort accepts 0, which lets the operating system choose the port.
func validatePort(port string) error {
	if value, err := strconv.ParseInt(port, 10, 32); err != nil {
		return errors.New("invalid port, must be a integer")
	} else if value < 0 || value > 65535 {
		return fmt.Errorf("invalid port %d, must 0-65535", value)
	}
	return nil
}
