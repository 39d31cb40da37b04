// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package heap

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func popValues(filter *TopKFilter[int32, float32]) []int32 {
	var values []int32
	for _, elem := range filter.PopAll() {
		values = append(values, elem.Value)
	}
	return values
}

func TestTopKFilter(t *testing.T) {
	// Test a adjacent vec
	a := NewTopKFilter[int32, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	values := popValues(a)
	assert.Equal(t, []int32{20, 10, 30}, values)
	// Test a full adjacent vec
	a = NewTopKFilter[int32, float32](3)
	a.Push(10, 2)
	a.Push(20, 8)
	a.Push(30, 1)
	a.Push(40, 2)
	a.Push(50, 5)
	a.Push(12, 10)
	a.Push(67, 7)
	a.Push(32, 9)
	elems := a.PopAll()
	assert.Equal(t, []Elem[int32, float32]{
		{Value: 12, Weight: 10},
		{Value: 32, Weight: 9},
		{Value: 20, Weight: 8},
	}, elems)
	assert.Zero(t, a.Len())
}

func TestTopKFilterTies(t *testing.T) {
	a := NewTopKFilter[int32, float32](3)
	a.Push(7, 1)
	a.Push(5, 1)
	a.Push(9, 1)
	a.Push(1, 1)
	a.Push(3, 2)
	assert.Equal(t, []int32{3, 1, 5}, popValues(a))
}

func TestTopKFilterZero(t *testing.T) {
	a := NewTopKFilter[int32, float32](0)
	a.Push(1, 1)
	assert.Empty(t, a.PopAll())
}

func TestTopKFilterRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	elems := make([]Elem[int32, float32], 1000)
	a := NewTopKFilter[int32, float32](10)
	for i := range elems {
		elems[i] = Elem[int32, float32]{Value: int32(i), Weight: float32(rng.Intn(50))}
		a.Push(elems[i].Value, elems[i].Weight)
	}
	sort.Slice(elems, func(i, j int) bool {
		return elems[i].better(elems[j])
	})
	assert.Equal(t, elems[:10], a.PopAll())
}

func TestTopKFilterHugeK(t *testing.T) {
	a := NewTopKFilter[int32, float32](math.MaxInt)
	a.Push(1, 0.3)
	a.Push(2, 0.1)
	a.Push(3, 0.2)
	assert.Equal(t, []int32{1, 3, 2}, popValues(a))
}
