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

package sync

// This file provides the interfaces a remote mail store implements to
// be synchronized into the cache.

import (
	"context"

	"github.com/matta/mailcache/internal/cache"
	"github.com/matta/mailcache/internal/mail"

	"github.com/pkg/errors"
)

var (
	// ErrCannotCalculateChanges is returned by a source when it can
	// not compute changes since the given state, e.g. because the
	// state is too old.  The caller falls back to a full fetch.
	ErrCannotCalculateChanges = errors.New("cannot calculate changes")
)

// Changes is one page of changes of an object type since OldState.
type Changes[T any] struct {
	OldState       string `json:"oldState"`
	NewState       string `json:"newState"`
	HasMoreChanges bool   `json:"hasMoreChanges,omitempty"`

	Created []T `json:"created,omitempty"`
	Updated []T `json:"updated,omitempty"`

	// UpdatedProperties, when set, limits every entry of Updated to
	// the named properties.
	UpdatedProperties []string `json:"updatedProperties,omitempty"`

	Destroyed []string `json:"destroyed,omitempty"`
}

// Delta converts c to the form merged by the cache.
func (c *Changes[T]) Delta() cache.Delta[T] {
	d := cache.Delta[T]{
		OldState:  c.OldState,
		NewState:  c.NewState,
		Created:   c.Created,
		Destroyed: c.Destroyed,
	}
	for _, v := range c.Updated {
		d.Updated = append(d.Updated, cache.Update[T]{Value: v, Properties: c.UpdatedProperties})
	}
	return d
}

// ObjectSource reads one object type from a remote mail store.
type ObjectSource[T any] interface {
	// Get returns every object and the state they were read at.
	Get(ctx context.Context) (objects []T, state string, err error)

	// Changes returns the changes since sinceState, or
	// ErrCannotCalculateChanges.
	Changes(ctx context.Context, sinceState string) (*Changes[T], error)

	// GetByID returns the objects named by ids that exist, and the
	// current state.
	GetByID(ctx context.Context, ids []string) (objects []T, state string, err error)
}

// QueryResult is one page of a query's result.
type QueryResult struct {
	QueryState          string
	CanCalculateChanges bool
	ThreadIDs           []string
}

// QuerySource runs saved queries against a remote mail store.
type QuerySource interface {
	// Query returns up to limit thread ids of queryString following
	// afterThreadID, or from the start when afterThreadID is "".
	Query(ctx context.Context, queryString, afterThreadID string, limit int) (*QueryResult, error)

	// QueryChanges returns the changes to the result of queryString
	// since sinceState, or ErrCannotCalculateChanges.
	QueryChanges(ctx context.Context, queryString, sinceState string) (*cache.QueryChanges, error)
}

// MailStorage provides all possible actions available to deal with
// a remote mail store.
type MailStorage interface {
	Emails() ObjectSource[mail.Email]
	Threads() ObjectSource[mail.Thread]
	Mailboxes() ObjectSource[mail.Mailbox]
	Identities() ObjectSource[mail.Identity]
	QuerySource
}
