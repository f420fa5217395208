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
	"crypto/tls"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddressConfig_Parse(t *testing.T) {
	t.Run("a string is an http host", func(t *testing.T) {
		req := require.New(t)

		address := &AddressConfig{}
		req.NoError(address.Parse("127.0.0.1"))
		req.Equal(AddressConfig{Host: "127.0.0.1", Http: true}, *address)
	})

	t.Run("a map selects the protocols", func(t *testing.T) {
		req := require.New(t)

		address := &AddressConfig{}
		req.NoError(address.Parse(map[interface{}]interface{}{"host": "0.0.0.0", "http": false, "https": true}))
		req.Equal(AddressConfig{Host: "0.0.0.0", Https: true}, *address)
	})

	t.Run("http defaults to enabled", func(t *testing.T) {
		req := require.New(t)

		address := &AddressConfig{}
		req.NoError(address.Parse(map[interface{}]interface{}{"host": "localhost"}))
		req.True(address.Http)
		req.False(address.Https)
	})

	t.Run("invalid values fail", func(t *testing.T) {
		req := require.New(t)

		req.Error((&AddressConfig{}).Parse(42))
		req.Error((&AddressConfig{}).Parse(map[interface{}]interface{}{}))
		req.Error((&AddressConfig{}).Parse(map[interface{}]interface{}{"host": 1}))
		req.Error((&AddressConfig{}).Parse(map[interface{}]interface{}{"host": "h", "https": "yes"}))
	})
}

func TestAddressConfig_Validate(t *testing.T) {
	req := require.New(t)

	req.NoError((&AddressConfig{Host: "localhost", Http: true}).Validate())
	req.Error((&AddressConfig{Host: " ", Http: true}).Validate())
	req.Error((&AddressConfig{Host: "a/b", Http: true}).Validate())
	req.Error((&AddressConfig{Host: "localhost"}).Validate())
}

func Test_validatePort(t *testing.T) {
	req := require.New(t)

	req.NoError(validatePort("0"))
	req.NoError(validatePort("65535"))
	req.Error(validatePort("65536"))
	req.Error(validatePort("-1"))
	req.Error(validatePort("http"))
}

func TestServerConfig_Parse(t *testing.T) {
	t.Run("a full configuration parses", func(t *testing.T) {
		req := require.New(t)

		config := NewServerConfig()
		err := config.Parse(map[interface{}]interface{}{
			"name": "edge",
			"listeningAddresses": []interface{}{
				"127.0.0.1",
				map[interface{}]interface{}{"host": "localhost", "http": true},
			},
			"httpPort":  9080,
			"httpsPort": 9443,
			"options": map[interface{}]interface{}{
				"readTimeout":        "1s",
				"writeTimeout":       "2s",
				"idleTimeout":        "3s",
				"shutdownTimeout":    "4s",
				"minTLSVersion":      "TLS1.3",
				"maxTLSVersion":      "TLS1.3",
				"disableCompression": true,
			},
		}, "web")
		req.NoError(err)
		req.NoError(config.Validate())

		req.Equal("edge", config.Name)
		req.Len(config.ListeningAddresses, 2)
		req.Equal(9080, config.HttpPort)
		req.Equal(9443, config.HttpsPort)
		req.Equal(time.Second, config.Options.ReadTimeout)
		req.Equal(2*time.Second, config.Options.WriteTimeout)
		req.Equal(3*time.Second, config.Options.IdleTimeout)
		req.Equal(4*time.Second, config.Options.ShutdownTimeout)
		req.Equal(tls.VersionTLS13, config.Options.MinTLSVersion)
		req.True(config.Options.DisableCompression)
		req.True(config.HttpEnabled())
		req.False(config.HttpsEnabled())
		req.Len(config.BindPoints(), 2)
	})

	t.Run("defaults are kept", func(t *testing.T) {
		req := require.New(t)

		config := NewServerConfig()
		req.NoError(config.Parse(map[interface{}]interface{}{
			"listeningAddresses": []interface{}{"127.0.0.1"},
		}, "web"))

		req.Equal(DefaultServerName, config.Name)
		req.Equal(DefaultHttpPort, config.HttpPort)
		req.Equal(DefaultHttpsPort, config.HttpsPort)
		req.Equal(DefaultShutdownTimeout, config.Options.ShutdownTimeout)
		req.Equal(DefaultHttpWriteTimeout, config.Options.WriteTimeout)
	})

	t.Run("listening addresses are required", func(t *testing.T) {
		req := require.New(t)
		req.Error(NewServerConfig().Parse(map[interface{}]interface{}{}, "web"))
	})

	t.Run("invalid values fail", func(t *testing.T) {
		req := require.New(t)

		addresses := []interface{}{"127.0.0.1"}
		req.Error(NewServerConfig().Parse(map[interface{}]interface{}{"listeningAddresses": "127.0.0.1"}, "web"))
		req.Error(NewServerConfig().Parse(map[interface{}]interface{}{"listeningAddresses": addresses, "httpPort": "80"}, "web"))
		req.Error(NewServerConfig().Parse(map[interface{}]interface{}{"listeningAddresses": addresses, "options": "fast"}, "web"))
		req.Error(NewServerConfig().Parse(map[interface{}]interface{}{"listeningAddresses": addresses, "identity": "cert.pem"}, "web"))
		req.Error(NewServerConfig().Parse(map[interface{}]interface{}{
			"listeningAddresses": addresses,
			"options":            map[interface{}]interface{}{"readTimeout": "soon"},
		}, "web"))
		req.Error(NewServerConfig().Parse(map[interface{}]interface{}{
			"listeningAddresses": addresses,
			"options":            map[interface{}]interface{}{"minTLSVersion": "SSL3"},
		}, "web"))
	})
}

func TestServerConfig_Validate(t *testing.T) {
	t.Run("at least one address is required", func(t *testing.T) {
		req := require.New(t)
		req.Error(NewServerConfig().Validate())
	})

	t.Run("https requires an identity", func(t *testing.T) {
		req := require.New(t)

		config := NewServerConfig()
		config.ListeningAddresses = []*AddressConfig{{Host: "127.0.0.1", Https: true}}
		req.Error(config.Validate())
	})

	t.Run("ports must be in range", func(t *testing.T) {
		req := require.New(t)

		config := newLocalConfig(70000)
		req.Error(config.Validate())
	})

	t.Run("options are validated", func(t *testing.T) {
		req := require.New(t)

		config := newLocalConfig(0)
		config.Options.MinTLSVersion = tls.VersionTLS13
		config.Options.MaxTLSVersion = tls.VersionTLS12
		req.Error(config.Validate())

		config = newLocalConfig(0)
		config.Options.ShutdownTimeout = 0
		req.Error(config.Validate())

		config = newLocalConfig(0)
		config.Options.IdleTimeout = 0
		req.Error(config.Validate())
	})

	t.Run("a nil address is rejected", func(t *testing.T) {
		req := require.New(t)

		config := newLocalConfig(0)
		config.ListeningAddresses = append(config.ListeningAddresses, nil)
		req.Error(config.Validate())
	})
}
