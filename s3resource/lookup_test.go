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

package s3resource

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/openziti/xmount"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	data    []byte
	modTime time.Time
}

type fakeObjectAPI struct {
	bucket  string
	objects map[string]fakeObject
	headErr error
	gets    int
}

func (f *fakeObjectAPI) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if aws.ToString(params.Bucket) != f.bucket {
		return nil, &types.NoSuchBucket{}
	}
	obj, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		LastModified:  aws.Time(obj.modTime),
		ContentLength: aws.Int64(int64(len(obj.data))),
	}, nil
}

func (f *fakeObjectAPI) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	obj, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:         io.NopCloser(bytes.NewReader(obj.data)),
		LastModified: aws.Time(obj.modTime),
	}, nil
}

func newFake() *fakeObjectAPI {
	return &fakeObjectAPI{
		bucket: "site",
		objects: map[string]fakeObject{
			"static/index.html":    {data: []byte("<html>home</html>"), modTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
			"static/css/site.css":  {data: []byte("body{}"), modTime: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)},
			"private/secrets.json": {data: []byte("{}")},
		},
	}
}

func TestLookup_Find(t *testing.T) {
	t.Run("existing object resolves under the prefix", func(t *testing.T) {
		req := require.New(t)
		lookup := NewLookup(newFake(), "site", "static/")

		resource, err := lookup.Find("/css/site.css")
		req.NoError(err)
		req.NotNil(resource)
		req.Equal("site.css", resource.Name())
		req.Equal(time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC), resource.ModTime())

		content, err := resource.Open()
		req.NoError(err)
		defer func() { _ = content.Close() }()

		data, err := io.ReadAll(content)
		req.NoError(err)
		req.Equal("body{}", string(data))
	})

	t.Run("missing object is absent", func(t *testing.T) {
		req := require.New(t)
		lookup := NewLookup(newFake(), "site", "static/")

		resource, err := lookup.Find("/nope.txt")
		req.NoError(err)
		req.Nil(resource)
	})

	t.Run("root path is absent", func(t *testing.T) {
		req := require.New(t)
		lookup := NewLookup(newFake(), "site", "static/")

		resource, err := lookup.Find("/")
		req.NoError(err)
		req.Nil(resource)
	})

	t.Run("dot segments cannot escape the prefix", func(t *testing.T) {
		req := require.New(t)
		lookup := NewLookup(newFake(), "site", "static/")

		resource, err := lookup.Find("/../private/secrets.json")
		req.NoError(err)
		req.Nil(resource)
	})

	t.Run("other errors are returned", func(t *testing.T) {
		req := require.New(t)
		fake := newFake()
		fake.headErr = errors.New("connection reset")
		lookup := NewLookup(fake, "site", "static/")

		resource, err := lookup.Find("/index.html")
		req.Error(err)
		req.Nil(resource)
		req.Contains(err.Error(), "s3://site/static/index.html")
	})
}

func TestLookup_ServedByResourceHandler(t *testing.T) {
	req := require.New(t)
	fake := newFake()
	handler := xmount.NewResourceHandler(NewLookup(fake, "site", "static/").ResourceLookup())

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal("<html>home</html>", recorder.Body.String())
	req.Equal(1, fake.gets)

	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/missing.html", nil))
	req.Equal(http.StatusNotFound, recorder.Code)
}

func TestProvider(t *testing.T) {
	t.Run("bucket is required", func(t *testing.T) {
		req := require.New(t)
		lookup, err := Provider(map[interface{}]interface{}{})
		req.Error(err)
		req.Nil(lookup)
	})

	t.Run("builds a lookup", func(t *testing.T) {
		req := require.New(t)
		lookup, err := Provider(map[interface{}]interface{}{
			"bucket":    "site",
			"prefix":    "static/",
			"region":    "eu-west-1",
			"endpoint":  "http://127.0.0.1:9000",
			"pathStyle": true,
		})
		req.NoError(err)
		req.NotNil(lookup)
	})
}
