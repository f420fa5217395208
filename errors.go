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

// ConfigurationError is returned when a Mapping declares a url pattern that is not a path-prefix pattern
// (a fixed segment followed by "/*").
type ConfigurationError struct {
	Mapping string
	Pattern string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("mapping [%s] has url pattern [%s] which is not a path-prefix pattern of the form /prefix/*", e.Mapping, e.Pattern)
}

// IllegalStateError is returned when an operation is invoked in a ServerState that forbids it.
type IllegalStateError struct {
	Message string
}

func (e *IllegalStateError) Error() string {
	return e.Message
}

// NotFoundError is returned when a referenced context does not exist.
type NotFoundError struct {
	Kind string
	Id   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s [%s] does not exist", e.Kind, e.Id)
}

// DeploymentError is returned when a Context fails to compile its mappings into a dispatchable handler.
type DeploymentError struct {
	ContextId ContextId
	Cause     error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("could not deploy context [%s]: %v", e.ContextId, e.Cause)
}

func (e *DeploymentError) Unwrap() error {
	return e.Cause
}

// InvalidArgumentError is returned for nil or malformed input to a public operation.
type InvalidArgumentError struct {
	Argument string
	Reason   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument [%s]: %s", e.Argument, e.Reason)
}

func illegalState(format string, args ...interface{}) error {
	return &IllegalStateError{Message: fmt.Sprintf(format, args...)}
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsIllegalStateError(err error) bool {
	var target *IllegalStateError
	return errors.As(err, &target)
}

func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsDeploymentError(err error) bool {
	var target *DeploymentError
	return errors.As(err, &target)
}

func IsInvalidArgumentError(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}
