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

package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// loadConfig reads a YAML file into the map[interface{}]interface{} form the xmount config types parse.
func loadConfig(path string) (map[interface{}]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read configuration [%s]", path)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (map[interface{}]interface{}, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "could not parse configuration")
	}

	result := map[interface{}]interface{}{}
	for k, v := range raw {
		result[k] = normalize(v)
	}
	return result, nil
}

// normalize converts the map[string]interface{} values produced by yaml.v3 into map[interface{}]interface{}.
func normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		result := make(map[interface{}]interface{}, len(v))
		for key, val := range v {
			result[key] = normalize(val)
		}
		return result
	case map[interface{}]interface{}:
		result := make(map[interface{}]interface{}, len(v))
		for key, val := range v {
			result[fmt.Sprint(key)] = normalize(val)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = normalize(val)
		}
		return result
	default:
		return value
	}
}
