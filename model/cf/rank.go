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

package cf

import (
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/cfkit/common/heap"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

type ScoredItem struct {
	ItemId int32
	Score  float32
}

// RankedList is ordered by descending score, ties by ascending item id.
type RankedList []ScoredItem

// Items returns item ids of the list.
func (list RankedList) Items() []int32 {
	return lo.Map(list, func(item ScoredItem, _ int) int32 {
		return item.ItemId
	})
}

// TopN returns the n highest scored items not in exclude. Items scored -Inf or
// NaN are never returned. Fewer than n items are returned if not enough remain.
func TopN(scores []float32, exclude mapset.Set[int32], n int) (RankedList, error) {
	if exclude == nil {
		return TopNFunc(scores, n, nil)
	}
	return TopNFunc(scores, n, func(itemId int32) bool {
		return exclude.Contains(itemId)
	})
}

// TopNFunc returns the n highest scored items for which skip returns false.
func TopNFunc(scores []float32, n int, skip func(itemId int32) bool) (RankedList, error) {
	if n <= 0 {
		return nil, errors.Annotatef(model.ErrInvalidConfiguration, "n = %d, expect > 0", n)
	}
	filter := heap.NewTopKFilter[int32, float32](n)
	for i, score := range scores {
		itemId := int32(i)
		if math32.IsNaN(score) || math32.IsInf(score, -1) {
			continue
		}
		if skip != nil && skip(itemId) {
			continue
		}
		filter.Push(itemId, score)
	}
	elems := filter.PopAll()
	list := make(RankedList, len(elems))
	for i, elem := range elems {
		list[i] = ScoredItem{ItemId: elem.Value, Score: elem.Weight}
	}
	return list, nil
}
