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

package cache

import "github.com/pkg/errors"

var (
	// ErrBaselineMismatch is returned when an Append or AppendPage
	// names a baseline state that is no longer the stored one.
	// Nothing was written; the caller should Reset.
	ErrBaselineMismatch = errors.New("baseline state does not match the cache")

	// ErrUpdateConflict is returned when a delta's old state is not
	// the stored one.  The stored state token was not advanced; the
	// caller must Reset to be sure the cache is correct.
	ErrUpdateConflict = errors.New("delta old state does not match the cache")

	// ErrUnpatchableProperty is returned when a delta asks for a
	// partial update of a property the cache cannot patch.  It
	// indicates a defect in the caller's property negotiation and is
	// never worth retrying.
	ErrUnpatchableProperty = errors.New("property cannot be patched")
)

// IsConflict reports whether err means the cache must be reset from a
// fresh snapshot.
func IsConflict(err error) bool {
	return errors.Is(err, ErrBaselineMismatch) || errors.Is(err, ErrUpdateConflict)
}
