// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
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

package funcutil

// OrderedMap is a map that iterates in key insertion order. The analyses use
// it wherever iteration order over recorded calls can reach the output.
type OrderedMap[K comparable, V any] struct {
	keys []K
	m    map[K]V
}

// NewOrderedMap returns an empty ordered map.
func NewOrderedMap[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{m: map[K]V{}}
}

// Set inserts or updates the value for k. A key keeps its original position
// when updated.
func (o *OrderedMap[K, V]) Set(k K, v V) {
	if _, ok := o.m[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.m[k] = v
}

// Get returns the value for k and whether it is present.
func (o *OrderedMap[K, V]) Get(k K) (V, bool) {
	v, ok := o.m[k]
	return v, ok
}

// Has returns whether k is present.
func (o *OrderedMap[K, V]) Has(k K) bool {
	_, ok := o.m[k]
	return ok
}

// Delete removes k, returning whether it was present.
func (o *OrderedMap[K, V]) Delete(k K) bool {
	if _, ok := o.m[k]; !ok {
		return false
	}
	delete(o.m, k)
	for i, key := range o.keys {
		if key == k {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (o *OrderedMap[K, V]) Len() int { return len(o.m) }

// Keys returns the keys in insertion order. The returned slice is shared
// with the map and must not be mutated.
func (o *OrderedMap[K, V]) Keys() []K { return o.keys }

// Range calls f on each entry in insertion order until f returns false.
// Entries may be deleted during iteration; entries added during iteration
// are visited.
func (o *OrderedMap[K, V]) Range(f func(K, V) bool) {
	for i := 0; i < len(o.keys); i++ {
		k := o.keys[i]
		v, ok := o.m[k]
		if !ok {
			continue
		}
		if !f(k, v) {
			return
		}
		// A delete of the current key shifts the remaining keys left.
		if i < len(o.keys) && o.keys[i] != k {
			i--
		}
	}
}
