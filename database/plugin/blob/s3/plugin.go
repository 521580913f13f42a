// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package s3

import (
	"errors"
	"net/url"
	"strings"

	"github.com/blinklabs-io/vaultledger/database/plugin"
)

func init() {
	plugin.Register(
		plugin.PluginEntry{
			Type:        plugin.PluginTypeBlob,
			Name:        "s3",
			Description: "AWS S3 bucket (dsn s3://bucket/prefix?region=&endpoint=)",
			NewFunc:     NewFromOptions,
		},
	)
}

// Location is a parsed s3:// archive locator
type Location struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// ParseDSN parses s3://bucket[/prefix][?region=...&endpoint=...]
func ParseDSN(dsn string) (Location, error) {
	if dsn == "" {
		return Location{}, errors.New("s3 blob: dsn not set (expected s3://<bucket>[/<prefix>])")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return Location{}, err
	}
	if u.Scheme != "s3" {
		return Location{}, errors.New("s3 blob: dsn must use the s3:// scheme")
	}
	if u.Host == "" {
		return Location{}, errors.New("s3 blob: bucket not set")
	}
	prefix := strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	query := u.Query()
	return Location{
		Bucket:   u.Host,
		Prefix:   prefix,
		Region:   query.Get("region"),
		Endpoint: query.Get("endpoint"),
	}, nil
}

func NewFromOptions(opts plugin.Options) (plugin.Plugin, error) {
	loc, err := ParseDSN(opts.DSN)
	if err != nil {
		return nil, err
	}
	return New(
		WithBucket(loc.Bucket),
		WithPrefix(loc.Prefix),
		WithRegion(loc.Region),
		WithEndpoint(loc.Endpoint),
		WithLogger(opts.Logger),
		WithPromRegistry(opts.PromRegistry),
	)
}
