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

import (
	"reflect"
	"testing"
)

func TestOrderedMap_insertionOrder(t *testing.T) {
	o := NewOrderedMap[string, int]()
	o.Set("c", 3)
	o.Set("a", 1)
	o.Set("b", 2)
	o.Set("a", 10) // update keeps position

	if got := o.Keys(); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Errorf("Keys() = %v", got)
	}
	var visited []string
	o.Range(func(k string, v int) bool {
		visited = append(visited, k)
		return true
	})
	if !reflect.DeepEqual(visited, []string{"c", "a", "b"}) {
		t.Errorf("Range order = %v", visited)
	}
	if v, _ := o.Get("a"); v != 10 {
		t.Errorf("Get(a) = %d, want 10", v)
	}
}

func TestOrderedMap_deleteDuringRange(t *testing.T) {
	o := NewOrderedMap[int, string]()
	for i := 0; i < 5; i++ {
		o.Set(i, "v")
	}
	var visited []int
	o.Range(func(k int, v string) bool {
		visited = append(visited, k)
		if k == 1 {
			o.Delete(1)
		}
		return true
	})
	if !reflect.DeepEqual(visited, []int{0, 1, 2, 3, 4}) {
		t.Errorf("Range order = %v", visited)
	}
	if o.Len() != 4 || o.Has(1) {
		t.Errorf("Delete failed: len=%d", o.Len())
	}
}

func TestSortedKeys(t *testing.T) {
	m := map[uint64]string{9: "", 2: "", 5: ""}
	if got := SortedKeys(m); !reflect.DeepEqual(got, []uint64{2, 5, 9}) {
		t.Errorf("SortedKeys = %v", got)
	}
}
