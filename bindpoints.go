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
	gotls "crypto/tls"
	"net"

	transporttls "github.com/openziti/transport/v2/tls"
	"github.com/pkg/errors"
)

// The BindPoint interface provides the listeners a Server serves on.
type BindPoint interface {
	Listener(serverName string, tlsConfig *gotls.Config) (net.Listener, error) // a listener to be used with the http server
	ServerAddress() string                                                     // the address the server listens on
	Secure() bool                                                              // true if the listener requires tlsConfig
}

type plainBindPoint struct {
	address string
}

func (bp *plainBindPoint) Listener(_ string, _ *gotls.Config) (net.Listener, error) {
	return net.Listen("tcp", bp.address)
}

func (bp *plainBindPoint) ServerAddress() string {
	return bp.address
}

func (bp *plainBindPoint) Secure() bool {
	return false
}

type tlsBindPoint struct {
	address string
}

func (bp *tlsBindPoint) Listener(serverName string, tlsConfig *gotls.Config) (net.Listener, error) {
	if tlsConfig == nil {
		return nil, errors.Errorf("no tls configuration available for secure address %s", bp.address)
	}

	cfg := tlsConfig.Clone()
	// make sure to listen to the expected protocols
	cfg.NextProtos = append(cfg.NextProtos, "h2", "http/1.1")

	return transporttls.ListenTLS(bp.address, serverName, cfg)
}

func (bp *tlsBindPoint) ServerAddress() string {
	return bp.address
}

func (bp *tlsBindPoint) Secure() bool {
	return true
}
