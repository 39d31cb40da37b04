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
	"math"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/cfkit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopN(t *testing.T) {
	scores := []float32{0.1, 0.9, 0.5, 0.9, 0.3}
	list, err := TopN(scores, nil, 3)
	require.NoError(t, err)
	// ties are broken by ascending item id
	assert.Equal(t, RankedList{{1, 0.9}, {3, 0.9}, {2, 0.5}}, list)
	assert.Equal(t, []int32{1, 3, 2}, list.Items())
}

func TestTopN_Exclude(t *testing.T) {
	scores := []float32{0.1, 0.9, 0.5, 0.9, 0.3}
	list, err := TopN(scores, mapset.NewSet[int32](1, 2), 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 4, 0}, list.Items())
}

func TestTopN_NotEnoughItems(t *testing.T) {
	scores := []float32{0.1, float32(math.Inf(-1)), float32(math.NaN()), 0.2}
	list, err := TopN(scores, mapset.NewSet[int32](0), 10)
	require.NoError(t, err)
	// no padding with excluded or -Inf items
	assert.Equal(t, []int32{3}, list.Items())
	list, err = TopN(nil, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTopN_HugeN(t *testing.T) {
	list, err := TopN([]float32{0.3, 0.1, 0.2}, nil, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 2, 1}, list.Items())
}

func TestTopN_NegativeScores(t *testing.T) {
	scores := []float32{-3, -1, -2, float32(math.Inf(1))}
	list, err := TopN(scores, nil, 3)
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 1, 2}, list.Items())
}

func TestTopN_InvalidN(t *testing.T) {
	_, err := TopN([]float32{1, 2}, nil, 0)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
	_, err = TopNFunc([]float32{1, 2}, -1, nil)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
}

func TestTopNFunc(t *testing.T) {
	scores := []float32{5, 4, 3, 2, 1}
	list, err := TopNFunc(scores, 2, func(itemId int32) bool {
		return itemId%2 == 0
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 3}, list.Items())
}
