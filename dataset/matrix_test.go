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

package dataset

import (
	"math"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatrix(t *testing.T) *Matrix {
	// 0: 2 0 1 .
	// 1: . 3 . .
	// 2: 1 . . 4
	// 3: . . . .
	m, err := FromTriples(4, 4, []Triple{
		{2, 3, 4},
		{0, 2, 1},
		{1, 1, 3},
		{0, 0, 2},
		{2, 0, 1},
	})
	require.NoError(t, err)
	return m
}

func TestMatrix(t *testing.T) {
	m := newTestMatrix(t)
	assert.Equal(t, 4, m.CountUsers())
	assert.Equal(t, 4, m.CountItems())
	assert.Equal(t, 5, m.CountFeedback())
	items, weights := m.UserFeedback(0)
	assert.Equal(t, []int32{0, 2}, items)
	assert.Equal(t, []float32{2, 1}, weights)
	items, weights = m.UserFeedback(3)
	assert.Empty(t, items)
	assert.Empty(t, weights)
	items, _ = m.UserFeedback(4)
	assert.Nil(t, items)
	users, weights := m.ItemFeedback(0)
	assert.Equal(t, []int32{0, 2}, users)
	assert.Equal(t, []float32{2, 1}, weights)
	users, weights = m.ItemFeedback(3)
	assert.Equal(t, []int32{2}, users)
	assert.Equal(t, []float32{4}, weights)
	assert.Equal(t, 2, m.CountUserFeedback(2))
	assert.True(t, m.UserSet(2).Equal(mapset.NewSet[int32](0, 3)))
	assert.Equal(t, []int32{0, 1, 2}, m.Users())
	assert.Equal(t, []float32{3, 3, 1, 4}, m.ItemPopularity())
}

func TestMatrix_Transpose(t *testing.T) {
	m := newTestMatrix(t).Transpose()
	assert.Equal(t, 5, m.CountFeedback())
	items, weights := m.UserFeedback(3)
	assert.Equal(t, []int32{2}, items)
	assert.Equal(t, []float32{4}, weights)
	users, _ := m.ItemFeedback(2)
	assert.Equal(t, []int32{0, 3}, users)
}

func TestMatrix_Threshold(t *testing.T) {
	m := newTestMatrix(t).Threshold(2)
	assert.Equal(t, 3, m.CountFeedback())
	items, weights := m.UserFeedback(0)
	assert.Equal(t, []int32{0}, items)
	assert.Equal(t, []float32{1}, weights)
	assert.Equal(t, []int32{0, 1, 2}, m.Users())
}

func TestMatrix_Sets(t *testing.T) {
	m := newTestMatrix(t)
	sets := RelevanceSets(m)
	assert.Len(t, sets, 3)
	assert.True(t, sets[0].Equal(mapset.NewSet[int32](0, 2)))
	assert.NotContains(t, sets, int32(3))
	assert.Equal(t, sets, ExclusionSets(m))
}

func TestNewMatrix_Errors(t *testing.T) {
	_, err := NewMatrix(-1, 2, nil, nil, nil)
	assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
	_, err = NewMatrix(2, 2, []int32{0}, []int32{0, 1}, []float32{1})
	assert.ErrorIs(t, err, model.ErrDimensionMismatch)
	_, err = NewMatrix(2, 2, []int32{2}, []int32{0}, []float32{1})
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
	_, err = NewMatrix(2, 2, []int32{0}, []int32{-1}, []float32{1})
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
	_, err = NewMatrix(2, 2, []int32{0, 1, 0}, []int32{1, 1, 1}, []float32{1, 1, 1})
	assert.ErrorIs(t, err, model.ErrDuplicateInteraction)
	for _, w := range []float32{0, -1, float32(math.NaN()), float32(math.Inf(1))} {
		_, err = NewMatrix(2, 2, []int32{0}, []int32{0}, []float32{w})
		assert.ErrorIs(t, err, errors.NotValid)
	}
	m, err := NewMatrix(0, 0, nil, nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, m.CountFeedback())
	assert.Empty(t, m.Users())
}
