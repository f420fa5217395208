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

// Package s3resource serves xmount context resources from objects in an S3 bucket.
package s3resource

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/openziti/xmount"
	"github.com/pkg/errors"
)

const (
	ResourceType   = "s3"
	DefaultRegion  = "us-east-1"
	DefaultTimeout = 10 * time.Second
)

// ObjectAPI is the subset of *s3.Client used by Lookup
type ObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Lookup resolves request paths to objects under Prefix in Bucket. "/css/site.css" with prefix "static/" is the
// key "static/css/site.css".
type Lookup struct {
	Client  ObjectAPI
	Bucket  string
	Prefix  string
	Timeout time.Duration
}

func NewLookup(client ObjectAPI, bucket, prefix string) *Lookup {
	return &Lookup{
		Client:  client,
		Bucket:  bucket,
		Prefix:  prefix,
		Timeout: DefaultTimeout,
	}
}

// ResourceLookup adapts the Lookup to xmount.ResourceLookup
func (l *Lookup) ResourceLookup() xmount.ResourceLookup {
	return l.Find
}

func (l *Lookup) key(requestPath string) string {
	name := strings.TrimPrefix(path.Clean("/"+requestPath), "/")
	if name == "" {
		return ""
	}
	return l.Prefix + name
}

func (l *Lookup) timeout() time.Duration {
	if l.Timeout <= 0 {
		return DefaultTimeout
	}
	return l.Timeout
}

// Find returns the object for requestPath, or nil if no such object exists.
func (l *Lookup) Find(requestPath string) (xmount.Resource, error) {
	key := l.key(requestPath)
	if key == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout())
	defer cancel()

	head, err := l.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(l.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not stat s3://%s/%s", l.Bucket, key)
	}

	return &object{
		lookup:  l,
		key:     key,
		modTime: aws.ToTime(head.LastModified),
	}, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}

type object struct {
	lookup  *Lookup
	key     string
	modTime time.Time
}

func (o *object) Name() string {
	return path.Base(o.key)
}

func (o *object) ModTime() time.Time {
	return o.modTime
}

// Open downloads the object into memory, http.ServeContent requires a seekable body.
func (o *object) Open() (io.ReadSeekCloser, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.lookup.timeout())
	defer cancel()

	out, err := o.lookup.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.lookup.Bucket),
		Key:    aws.String(o.key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not get s3://%s/%s", o.lookup.Bucket, o.key)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read s3://%s/%s", o.lookup.Bucket, o.key)
	}

	return xmount.NewBytesContent(data), nil
}

// Provider is an xmount.ResourceProvider for `type: s3` resources. Recognized options: bucket (required), prefix,
// region, endpoint and pathStyle. Requests are made anonymously, the bucket must allow public reads.
func Provider(options map[interface{}]interface{}) (xmount.ResourceLookup, error) {
	bucket, _ := options["bucket"].(string)
	if bucket == "" {
		return nil, errors.New("s3 resources require a bucket")
	}

	prefix, _ := options["prefix"].(string)

	region, _ := options["region"].(string)
	if region == "" {
		region = DefaultRegion
	}

	clientOptions := s3.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
	}

	if endpoint, ok := options["endpoint"].(string); ok && endpoint != "" {
		clientOptions.BaseEndpoint = aws.String(endpoint)
	}

	if pathStyle, ok := options["pathStyle"].(bool); ok {
		clientOptions.UsePathStyle = pathStyle
	}

	return NewLookup(s3.New(clientOptions), bucket, prefix).ResourceLookup(), nil
}
