// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config reads the mailcache configuration file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/matta/mailcache/internal/homedir"
	"github.com/matta/mailcache/internal/sync"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const DefaultPath = "~/.mailcache.toml"

// Config is the contents of the configuration file.  Keys missing
// from the file keep the values of Default.
type Config struct {
	Database    string   `toml:"database"`
	BusyTimeout Duration `toml:"busy_timeout"`

	// Queries whose windows "mailcache sync" keeps current.
	Queries []string `toml:"queries"`

	PageSize  int     `toml:"page_size"`
	MaxPages  int     `toml:"max_pages"`
	BatchSize int     `toml:"batch_size"`
	Rate      float64 `toml:"rate"`
	Burst     int     `toml:"burst"`
}

// Duration is a time.Duration written as text, e.g. "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Database:    "~/.mailcache.db",
		BusyTimeout: Duration{5 * time.Minute},
		Queries:     []string{"in:inbox"},
		PageSize:    sync.DefaultPageSize,
		MaxPages:    1,
		BatchSize:   sync.DefaultBatchSize,
		Rate:        sync.DefaultRate,
		Burst:       sync.DefaultBurst,
	}
}

// Load reads the file at path over Default.  A missing file is not an
// error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(homedir.Expand(path))
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config")
	}
	conf, err := Parse(string(data))
	return conf, errors.Wrapf(err, "config %s", path)
}

// Parse decodes TOML text over Default and verifies the result.
func Parse(text string) (*Config, error) {
	conf := Default()
	md, err := toml.Decode(text, conf)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		var keys []string
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, errors.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := conf.Verify(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) Verify() error {
	if c.Database == "" {
		return errors.New("database is empty")
	}
	if c.BusyTimeout.Duration < 0 {
		return errors.Errorf("negative busy_timeout %v", c.BusyTimeout.Duration)
	}
	for _, q := range c.Queries {
		if q == "" {
			return errors.New("empty query")
		}
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"page_size", c.PageSize},
		{"max_pages", c.MaxPages},
		{"batch_size", c.BatchSize},
		{"burst", c.Burst},
	} {
		if f.value <= 0 {
			return errors.Errorf("%s must be positive, not %d", f.name, f.value)
		}
	}
	if c.Rate <= 0 {
		return errors.Errorf("rate must be positive, not %v", c.Rate)
	}
	return nil
}

// DatabasePath is Database with "~" expanded.
func (c *Config) DatabasePath() string {
	return homedir.Expand(c.Database)
}

func (c *Config) SyncOptions() sync.Options {
	return sync.Options{
		Queries:   c.Queries,
		PageSize:  c.PageSize,
		MaxPages:  c.MaxPages,
		BatchSize: c.BatchSize,
		Rate:      rate.Limit(c.Rate),
		Burst:     c.Burst,
	}
}
