// Copyright 2023 Buf Technologies, Inc.
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

// Package attribute provides a type-safe container of custom attributes
// named Values. It is used to attach metadata to cluster hosts, such as
// the datacenter and rack a node reports, without this module having to
// enumerate every property a topology source may know about. Custom
// attributes are declared using [NewKey] to create a strongly-typed key.
// The values can then be defined using the key's Value method.
//
// The following example declares two custom attributes, a string
// "datacenter" and an integer "shard count", and builds a Values holding
// both:
//
//	var (
//		Datacenter = attribute.NewKey[string]()
//		ShardCount = attribute.NewKey[int]()
//
//		attrs = attribute.NewValues(
//			Datacenter.Value("dc1"),
//			ShardCount.Value(8),
//		)
//	)
//
// A topology registry can attach any kind of metadata to a host this way.
// Load-balancing policies read the properties back in a type-safe way
// using the [GetValue] function, e.g. to rate hosts in the local
// datacenter as closer than the rest.
package attribute

// Values is a collection of type-safe custom metadata values.
// It contains a mapping of [Key] to value for any number of
// attribute keys.
type Values struct {
	data map[any]any
}

// NewValues creates a new Values object with the provided values.
//
// Use this function in tandem with [Key.Value], like this:
//
//	var testKey = attribute.NewKey[string]()
//	...
//	attribute.NewValues(testKey.Value("test"))
func NewValues(values ...Value) Values {
	data := make(map[any]any)
	for _, attr := range values {
		data[attr.key] = attr.value
	}
	return Values{
		data: data,
	}
}

// Key is an attribute key. Applications should use NewKey to create
// a new key for each distinct attribute. The type T is the type of
// values this attribute can have.
type Key[T any] struct {
	// can't be empty or else pointers won't be distinct
	_ bool
}

// NewKey returns a new key that can have values of type T. Each call
// to NewKey results in a distinct attribute key, even if multiple are
// created for the same type. (Keys are identified by their address.)
func NewKey[T any]() *Key[T] {
	return new(Key[T])
}

// Value constructs a new attribute value, which can be passed to [NewValues].
func (k *Key[T]) Value(value T) Value {
	return Value{key: k, value: value}
}

// Value is a single custom attribute, composed of a key and
// corresponding value.
type Value struct {
	key, value any
}

// GetValue retrieves a single value from the given Values. If the key is not
// present, the zero value and false will be returned instead.
func GetValue[T any](values Values, key *Key[T]) (value T, ok bool) {
	val, ok := values.data[key]
	if !ok {
		var zero T
		return zero, false
	}
	tval, ok := val.(T)
	return tval, ok
}
