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
	"bytes"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/pkg/errors"
)

const ResourcesBinding = "resources"

// Resource is a single servable file.
type Resource interface {
	Name() string
	ModTime() time.Time
	Open() (io.ReadSeekCloser, error)
}

// ResourceLookup resolves a request path to a Resource. A nil Resource with a nil error means the path does not
// exist.
type ResourceLookup func(path string) (Resource, error)

// ResourceHandler serves every request path, verbatim, from a ResourceLookup.
type ResourceHandler struct {
	Lookup ResourceLookup
}

func NewResourceHandler(lookup ResourceLookup) *ResourceHandler {
	return &ResourceHandler{Lookup: lookup}
}

func (handler *ResourceHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet && request.Method != http.MethodHead {
		writer.Header().Set("Allow", "GET, HEAD")
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if handler.Lookup == nil {
		handler404(writer, request)
		return
	}

	resource, err := handler.Lookup(request.URL.Path)
	if err != nil {
		pfxlog.Logger().WithError(err).Errorf("resource lookup failed for %s", request.URL.Path)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}

	if resource == nil {
		handler404(writer, request)
		return
	}

	content, err := resource.Open()
	if err != nil {
		pfxlog.Logger().WithError(err).Errorf("could not open resource %s", request.URL.Path)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer func() { _ = content.Close() }()

	http.ServeContent(writer, request, resource.Name(), resource.ModTime(), content)
}

// ResourceHandlerFactory is the HandlerFactory for the "resources" binding. It serves the Resources of the
// ContextModel the mapping belongs to.
type ResourceHandlerFactory struct{}

func (factory *ResourceHandlerFactory) Binding() string {
	return ResourcesBinding
}

func (factory *ResourceHandlerFactory) New(model *ContextModel, _ *Mapping) (http.Handler, error) {
	if model.Resources == nil {
		return nil, errors.Errorf("context [%s] has no resources configured", model.Id)
	}
	return NewResourceHandler(model.Resources), nil
}

// FSResourceLookup serves the regular files of fsys. Directories and paths escaping the root are reported absent.
func FSResourceLookup(fsys fs.FS) ResourceLookup {
	return func(requestPath string) (Resource, error) {
		name := strings.TrimPrefix(path.Clean("/"+requestPath), "/")
		if name == "" || !fs.ValidPath(name) {
			return nil, nil
		}

		info, err := fs.Stat(fsys, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}

		if info.IsDir() {
			return nil, nil
		}

		return &fsResource{fsys: fsys, name: name, info: info}, nil
	}
}

// DirResourceProvider is the ResourceProvider for `type: dir` resources, serving the directory named by `path`.
func DirResourceProvider(options map[interface{}]interface{}) (ResourceLookup, error) {
	dir, ok := options["path"].(string)
	if !ok || dir == "" {
		return nil, errors.New("dir resources require a path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid resource directory %s", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("resource path %s is not a directory", dir)
	}

	return FSResourceLookup(os.DirFS(dir)), nil
}

type fsResource struct {
	fsys fs.FS
	name string
	info fs.FileInfo
}

func (r *fsResource) Name() string {
	return r.info.Name()
}

func (r *fsResource) ModTime() time.Time {
	return r.info.ModTime()
}

func (r *fsResource) Open() (io.ReadSeekCloser, error) {
	file, err := r.fsys.Open(r.name)
	if err != nil {
		return nil, err
	}

	if seeker, ok := file.(io.ReadSeekCloser); ok {
		return seeker, nil
	}

	defer func() { _ = file.Close() }()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return NewBytesContent(data), nil
}

// NewBytesContent wraps data as an io.ReadSeekCloser whose Close does nothing.
func NewBytesContent(data []byte) io.ReadSeekCloser {
	return bytesContent{Reader: bytes.NewReader(data)}
}

type bytesContent struct {
	*bytes.Reader
}

func (bytesContent) Close() error {
	return nil
}
