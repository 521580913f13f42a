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

package gcs

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
			Name:        "gcs",
			Description: "Google Cloud Storage bucket (dsn gcs://bucket/prefix)",
			NewFunc:     NewFromOptions,
		},
	)
}

// ParseDSN splits a gcs://bucket/prefix locator. The credentials query
// parameter names a service account key file.
func ParseDSN(dsn string) (bucket, prefix, credentials string, err error) {
	if dsn == "" {
		return "", "", "", errors.New("gcs blob: dsn not set (expected gcs://<bucket>[/<prefix>])")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", "", err
	}
	if u.Scheme != "gcs" {
		return "", "", "", errors.New("gcs blob: dsn must use the gcs:// scheme")
	}
	if u.Host == "" {
		return "", "", "", errors.New("gcs blob: bucket not set")
	}
	prefix = strings.Trim(u.Path, "/")
	if prefix != "" {
		prefix += "/"
	}
	return u.Host, prefix, u.Query().Get("credentials"), nil
}

func NewFromOptions(opts plugin.Options) (plugin.Plugin, error) {
	bucket, prefix, credentials, err := ParseDSN(opts.DSN)
	if err != nil {
		return nil, err
	}
	return New(
		WithBucket(bucket),
		WithPrefix(prefix),
		WithCredentialsFile(credentials),
		WithLogger(opts.Logger),
		WithPromRegistry(opts.PromRegistry),
	)
}
