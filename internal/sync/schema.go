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

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Shared definitions of the dump and journal formats.
const schemaDefs = `
"$defs": {
	"object": {
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string", "minLength": 1}}
	},
	"ids": {"type": "array", "items": {"type": "string", "minLength": 1}},
	"changes": {
		"type": "object",
		"required": ["oldState", "newState"],
		"properties": {
			"oldState": {"type": "string"},
			"newState": {"type": "string", "minLength": 1},
			"hasMoreChanges": {"type": "boolean"},
			"created": {"type": "array", "items": {"$ref": "#/$defs/object"}},
			"updated": {"type": "array", "items": {"$ref": "#/$defs/object"}},
			"updatedProperties": {"type": "array", "items": {"type": "string"}},
			"destroyed": {"$ref": "#/$defs/ids"}
		}
	},
	"queryChanges": {
		"type": "object",
		"required": ["oldState", "newState"],
		"properties": {
			"oldState": {"type": "string"},
			"newState": {"type": "string", "minLength": 1},
			"removed": {"$ref": "#/$defs/ids"},
			"added": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["index", "threadId"],
					"properties": {
						"index": {"type": "integer", "minimum": 0},
						"threadId": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	},
	"objects": {
		"type": "object",
		"required": ["state"],
		"properties": {
			"state": {"type": "string", "minLength": 1},
			"list": {"type": "array", "items": {"$ref": "#/$defs/object"}},
			"changes": {"type": "array", "items": {"$ref": "#/$defs/changes"}}
		}
	},
	"query": {
		"type": "object",
		"required": ["state", "threadIds"],
		"properties": {
			"state": {"type": "string", "minLength": 1},
			"canCalculateChanges": {"type": "boolean"},
			"threadIds": {"$ref": "#/$defs/ids"},
			"changes": {"type": "array", "items": {"$ref": "#/$defs/queryChanges"}}
		}
	}
}`

// dumpSchema describes the file read by LoadDump.
const dumpSchema = `{
"$schema": "https://json-schema.org/draft/2020-12/schema",
"type": "object",
"required": ["emails", "threads", "mailboxes", "identities"],
"additionalProperties": false,
"properties": {
	"emails": {"$ref": "#/$defs/objects"},
	"threads": {"$ref": "#/$defs/objects"},
	"mailboxes": {"$ref": "#/$defs/objects"},
	"identities": {"$ref": "#/$defs/objects"},
	"queries": {"type": "object", "additionalProperties": {"$ref": "#/$defs/query"}}
},
` + schemaDefs + `}`

// recordSchema describes one line of a journal read by Replay.
const recordSchema = `{
"$schema": "https://json-schema.org/draft/2020-12/schema",
"type": "object",
"required": ["kind"],
"properties": {
	"kind": {"enum": ["reset", "append", "changes", "window", "page", "queryChanges", "overwrite"]},
	"type": {"enum": ["Email", "Thread", "Mailbox", "Identity"]},
	"state": {"type": "string"},
	"list": {"type": "array", "items": {"$ref": "#/$defs/object"}},
	"changes": {"$ref": "#/$defs/changes"},
	"rejectOnConflict": {"type": "boolean"},
	"query": {"type": "string", "minLength": 1},
	"after": {"type": "string"},
	"threadIds": {"$ref": "#/$defs/ids"},
	"canCalculateChanges": {"type": "boolean"},
	"queryChanges": {"$ref": "#/$defs/queryChanges"},
	"thread": {"type": "string", "minLength": 1},
	"field": {"type": "string", "minLength": 1},
	"value": {"type": "boolean"}
},
"allOf": [
	{"if": {"properties": {"kind": {"enum": ["reset", "append"]}}},
	 "then": {"required": ["type", "state"]}},
	{"if": {"properties": {"kind": {"const": "changes"}}},
	 "then": {"required": ["type", "changes"]}},
	{"if": {"properties": {"kind": {"enum": ["window", "page"]}}},
	 "then": {"required": ["query", "state", "threadIds"]}},
	{"if": {"properties": {"kind": {"const": "queryChanges"}}},
	 "then": {"required": ["query", "queryChanges"]}},
	{"if": {"properties": {"kind": {"const": "overwrite"}}},
	 "then": {"required": ["thread", "field", "value"]}}
],
` + schemaDefs + `}`

var (
	dumpValidator   = mustCompile("https://github.com/matta/mailcache/dump.schema.json", dumpSchema)
	recordValidator = mustCompile("https://github.com/matta/mailcache/record.schema.json", recordSchema)
)

func mustCompile(url, schema string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		panic(err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		panic(err)
	}
	return c.MustCompile(url)
}

// validate checks the JSON document data against s.
func validate(s *jsonschema.Schema, data []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	return s.Validate(doc)
}
