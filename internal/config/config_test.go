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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matta/mailcache/internal/sync"
)

func TestParse(t *testing.T) {
	conf, err := Parse(`
database = "/var/mail/cache.db"
busy_timeout = "30s"
queries = ["in:inbox", "is:flagged"]
max_pages = 3
rate = 2.5
`)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	want := Default()
	want.Database = "/var/mail/cache.db"
	want.BusyTimeout = Duration{30 * time.Second}
	want.Queries = []string{"in:inbox", "is:flagged"}
	want.MaxPages = 3
	want.Rate = 2.5
	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	opts := conf.SyncOptions()
	if opts.MaxPages != 3 || opts.Rate != 2.5 || opts.PageSize != sync.DefaultPageSize {
		t.Errorf("SyncOptions() = %+v", opts)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`database = `,
		`busy_timeout = "soon"`,
		`databse = "typo.db"`,
		`database = ""`,
		`queries = ["in:inbox", ""]`,
		`page_size = 0`,
		`burst = -1`,
		`rate = 0.0`,
	}
	for _, text := range cases {
		if _, err := Parse(text); err == nil {
			t.Errorf("Parse(%q) = nil error", text)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	conf, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatalf("Load(missing) = %v", err)
	}
	if diff := cmp.Diff(Default(), conf); diff != "" {
		t.Errorf("Load(missing) mismatch (-want +got):\n%s", diff)
	}

	path := filepath.Join(dir, "mailcache.toml")
	if err := os.WriteFile(path, []byte("batch_size = 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	conf, err = Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if conf.BatchSize != 7 {
		t.Errorf("Load().BatchSize = %d, want 7", conf.BatchSize)
	}
}

func TestDatabasePath(t *testing.T) {
	t.Setenv("HOME", "/home/ann")
	if got, want := Default().DatabasePath(), "/home/ann/.mailcache.db"; got != want {
		t.Errorf("DatabasePath() = %q, want %q", got, want)
	}
}
