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

package homedir

import "testing"

func TestExpand(t *testing.T) {
	t.Setenv("HOME", "/home/ann")
	cases := []struct {
		path, want string
	}{
		{"~", "/home/ann"},
		{"~/.mailcache.db", "/home/ann/.mailcache.db"},
		{"~/a/../b", "/home/ann/b"},
		{"/var/cache.db", "/var/cache.db"},
		{"cache.db", "cache.db"},
		{"~bob/cache.db", "~bob/cache.db"},
	}
	for _, tc := range cases {
		if got := Expand(tc.path); got != tc.want {
			t.Errorf("Expand(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
