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
	"context"
	"math"
	"testing"

	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func computeSimilarity(t *testing.T, m *dataset.Matrix, config SimilarityConfig) *SimilarityMatrix {
	sim, err := ComputeSimilarity(context.Background(), m, config, 1)
	require.NoError(t, err)
	return sim
}

func TestComputeSimilarity_Cosine(t *testing.T) {
	sim := computeSimilarity(t, newTestMatrix(t), SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: 100})
	assert.Equal(t, 4, sim.Size())
	assert.Equal(t, 6, sim.CountNonZero())
	assert.InDelta(t, 2/math.Sqrt(6), sim.Get(0, 1), epsilon)
	assert.InDelta(t, 0.5, sim.Get(0, 2), epsilon)
	assert.InDelta(t, 2/math.Sqrt(6), sim.Get(1, 2), epsilon)
	assert.InDelta(t, 2/math.Sqrt(6), sim.Get(2, 1), epsilon)
	assert.Zero(t, sim.Get(0, 3))
	indices, values := sim.Row(3)
	assert.Empty(t, indices)
	assert.Empty(t, values)
	indices, values = sim.Column(2)
	assert.Equal(t, []int32{0, 1}, indices)
	assert.InDelta(t, 0.5, values[0], epsilon)
	assert.InDelta(t, 2/math.Sqrt(6), values[1], epsilon)
	indices, _ = sim.Row(10)
	assert.Nil(t, indices)
	indices, _ = sim.Column(-1)
	assert.Nil(t, indices)
}

func TestComputeSimilarity_NoSelfSimilarity(t *testing.T) {
	m := newBlockMatrix(t)
	for _, function := range []string{Cosine, AsymmetricCosine, Jaccard, Dice, Tversky, Pearson} {
		for _, axis := range []Axis{ItemBased, UserBased} {
			config := SimilarityConfig{Axis: axis, Function: function, TopK: 3,
				AsymmetricAlpha: 0.3, TverskyAlpha: 1, TverskyBeta: 0.5}
			sim := computeSimilarity(t, m, config)
			for i := int32(0); int(i) < sim.Size(); i++ {
				indices, _ := sim.Row(i)
				assert.NotContains(t, indices, i, "%s %v", function, axis)
				assert.LessOrEqual(t, len(indices), 3, "%s %v", function, axis)
				assert.Zero(t, sim.Get(i, i))
			}
		}
	}
}

func TestComputeSimilarity_TopK(t *testing.T) {
	sim := computeSimilarity(t, newTestMatrix(t), SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: 1})
	indices, _ := sim.Row(0)
	assert.Equal(t, []int32{1}, indices)
	// ties are broken by lower index
	indices, _ = sim.Row(1)
	assert.Equal(t, []int32{0}, indices)
	indices, _ = sim.Row(2)
	assert.Equal(t, []int32{1}, indices)
}

func TestComputeSimilarity_HugeTopK(t *testing.T) {
	sim := computeSimilarity(t, newTestMatrix(t), SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: math.MaxInt})
	assert.Equal(t, 6, sim.CountNonZero())
	assert.InDelta(t, 0.5, sim.Get(0, 2), epsilon)
}

func TestComputeSimilarity_SetBased(t *testing.T) {
	m := newTestMatrix(t)
	sim := computeSimilarity(t, m, SimilarityConfig{Axis: ItemBased, Function: Jaccard, TopK: 100})
	assert.InDelta(t, 2.0/3.0, sim.Get(0, 1), epsilon)
	assert.InDelta(t, 1.0/3.0, sim.Get(0, 2), epsilon)
	sim = computeSimilarity(t, m, SimilarityConfig{Axis: ItemBased, Function: Dice, TopK: 100})
	assert.InDelta(t, 0.8, sim.Get(0, 1), epsilon)
	assert.InDelta(t, 0.5, sim.Get(0, 2), epsilon)
	// tversky with alpha = beta = 1 is jaccard
	sim = computeSimilarity(t, m, SimilarityConfig{Axis: ItemBased, Function: Tversky, TopK: 100, TverskyAlpha: 1, TverskyBeta: 1})
	assert.InDelta(t, 2.0/3.0, sim.Get(0, 1), epsilon)
	// asymmetric tversky
	sim = computeSimilarity(t, m, SimilarityConfig{Axis: ItemBased, Function: Tversky, TopK: 100, TverskyAlpha: 1, TverskyBeta: 0})
	assert.InDelta(t, 1, sim.Get(0, 1), epsilon)
	assert.InDelta(t, 2.0/3.0, sim.Get(1, 0), epsilon)
}

func TestComputeSimilarity_Shrink(t *testing.T) {
	sim := computeSimilarity(t, newTestMatrix(t), SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: 100, Shrink: 1})
	assert.InDelta(t, 1.0/3.0, sim.Get(0, 2), epsilon)
	assert.InDelta(t, 2/(math.Sqrt(6)+1), sim.Get(0, 1), epsilon)
}

func TestComputeSimilarity_AsymmetricCosine(t *testing.T) {
	m := newTestMatrix(t)
	cosine := computeSimilarity(t, m, SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: 100})
	asymmetric := computeSimilarity(t, m, SimilarityConfig{Axis: ItemBased, Function: AsymmetricCosine, TopK: 100, AsymmetricAlpha: 0.5})
	for i := int32(0); i < 4; i++ {
		for j := int32(0); j < 4; j++ {
			assert.InDelta(t, cosine.Get(i, j), asymmetric.Get(i, j), epsilon)
		}
	}
	// |i0|^2 = 2, |i1|^2 = 3
	asymmetric = computeSimilarity(t, m, SimilarityConfig{Axis: ItemBased, Function: AsymmetricCosine, TopK: 100, AsymmetricAlpha: 1})
	assert.InDelta(t, 1, asymmetric.Get(0, 1), epsilon)
	assert.InDelta(t, 2.0/3.0, asymmetric.Get(1, 0), epsilon)
}

func TestComputeSimilarity_Pearson(t *testing.T) {
	m, err := dataset.NewMatrix(3, 2,
		[]int32{0, 0, 1, 1, 2, 2},
		[]int32{0, 1, 0, 1, 0, 1},
		[]float32{1, 3, 2, 4, 3, 1})
	require.NoError(t, err)
	sim := computeSimilarity(t, m, SimilarityConfig{Axis: UserBased, Function: Pearson, TopK: 100})
	assert.InDelta(t, 1, sim.Get(0, 1), epsilon)
	assert.InDelta(t, -1, sim.Get(0, 2), epsilon)
	indices, values := sim.Row(0)
	assert.Equal(t, []int32{1, 2}, indices)
	assert.Len(t, values, 2)
}

func TestComputeSimilarity_UserBased(t *testing.T) {
	m := newTestMatrix(t)
	sim := computeSimilarity(t, m, SimilarityConfig{Axis: UserBased, Function: Cosine, TopK: 100})
	assert.InDelta(t, 2/math.Sqrt(6), sim.Get(0, 1), epsilon)
	assert.InDelta(t, 0.5, sim.Get(0, 2), epsilon)
	indices, _ := sim.Row(3)
	assert.Empty(t, indices)
}

func TestComputeSimilarity_Parallel(t *testing.T) {
	m := newBlockMatrix(t)
	config := SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: 5}
	expected := computeSimilarity(t, m, config)
	actual, err := ComputeSimilarity(context.Background(), m, config, 4)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestComputeSimilarity_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ComputeSimilarity(ctx, newBlockMatrix(t), SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: 5}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimilarityConfig_Validate(t *testing.T) {
	valid := SimilarityConfig{Axis: ItemBased, Function: Cosine, TopK: 10}
	assert.NoError(t, valid.Validate())
	for _, config := range []SimilarityConfig{
		{Axis: ItemBased, Function: Cosine, TopK: 0},
		{Axis: ItemBased, Function: Cosine, TopK: 10, Shrink: -1},
		{Axis: ItemBased, Function: Cosine, TopK: 10, Shrink: float32(math.NaN())},
		{Axis: ItemBased, Function: "euclidean", TopK: 10},
		{Axis: ItemBased, Function: AsymmetricCosine, TopK: 10, AsymmetricAlpha: 2},
		{Axis: ItemBased, Function: Tversky, TopK: 10, TverskyAlpha: -1},
		{Axis: ItemBased, Function: Tversky, TopK: 10, TverskyBeta: -1},
		{Axis: Axis(5), Function: Cosine, TopK: 10},
	} {
		assert.ErrorIs(t, config.Validate(), model.ErrInvalidConfiguration, "%+v", config)
		_, err := ComputeSimilarity(context.Background(), newTestMatrix(t), config, 1)
		assert.ErrorIs(t, err, model.ErrInvalidConfiguration)
	}
}

func TestNewSimilarityConfig(t *testing.T) {
	config := NewSimilarityConfig(UserBased, model.Params{
		model.Similarity: Jaccard,
		model.Shrink:     10,
		model.TopK:       20,
	})
	assert.Equal(t, SimilarityConfig{
		Axis:            UserBased,
		Function:        Jaccard,
		Shrink:          10,
		TopK:            20,
		AsymmetricAlpha: 0.5,
		TverskyAlpha:    1,
		TverskyBeta:     1,
	}, config)
	assert.Equal(t, "user", config.Axis.String())
	assert.Equal(t, "item", ItemBased.String())
}
