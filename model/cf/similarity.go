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
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	"github.com/gorse-io/cfkit/common/heap"
	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/common/parallel"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Axis selects the entities compared by a similarity matrix.
type Axis int

const (
	ItemBased Axis = iota // compare items by the users who interacted with them
	UserBased             // compare users by the items they interacted with
)

func (axis Axis) String() string {
	switch axis {
	case ItemBased:
		return "item"
	case UserBased:
		return "user"
	default:
		return "unknown"
	}
}

// Similarity functions.
const (
	Cosine           = "cosine"
	AsymmetricCosine = "asymmetric_cosine"
	Jaccard          = "jaccard"
	Dice             = "dice"
	Tversky          = "tversky"
	Pearson          = "pearson"
)

// SimilarityConfig configures ComputeSimilarity.
type SimilarityConfig struct {
	Axis            Axis
	Function        string
	Shrink          float32
	TopK            int
	AsymmetricAlpha float32
	TverskyAlpha    float32
	TverskyBeta     float32
}

// NewSimilarityConfig reads a similarity configuration from hyper-parameters.
func NewSimilarityConfig(axis Axis, params model.Params) SimilarityConfig {
	return SimilarityConfig{
		Axis:            axis,
		Function:        params.GetString(model.Similarity, Cosine),
		Shrink:          params.GetFloat32(model.Shrink, 0),
		TopK:            params.GetInt(model.TopK, 100),
		AsymmetricAlpha: params.GetFloat32(model.AsymmetricAlpha, 0.5),
		TverskyAlpha:    params.GetFloat32(model.TverskyAlpha, 1),
		TverskyBeta:     params.GetFloat32(model.TverskyBeta, 1),
	}
}

func (config SimilarityConfig) Validate() error {
	if config.Axis != ItemBased && config.Axis != UserBased {
		return errors.Annotatef(model.ErrInvalidConfiguration, "unknown axis %d", config.Axis)
	}
	switch config.Function {
	case Cosine, Jaccard, Dice, Pearson:
	case AsymmetricCosine:
		if !(config.AsymmetricAlpha >= 0 && config.AsymmetricAlpha <= 1) {
			return invalidParam(model.AsymmetricAlpha, config.AsymmetricAlpha, "in [0, 1]")
		}
	case Tversky:
		if !(config.TverskyAlpha >= 0) {
			return invalidParam(model.TverskyAlpha, config.TverskyAlpha, ">= 0")
		}
		if !(config.TverskyBeta >= 0) {
			return invalidParam(model.TverskyBeta, config.TverskyBeta, ">= 0")
		}
	default:
		return errors.Annotatef(model.ErrInvalidConfiguration, "unknown similarity %q", config.Function)
	}
	if config.TopK <= 0 {
		return invalidParam(model.TopK, config.TopK, "> 0")
	}
	if !(config.Shrink >= 0) || math32.IsInf(config.Shrink, 1) {
		return invalidParam(model.Shrink, config.Shrink, ">= 0")
	}
	return nil
}

func (config SimilarityConfig) binary() bool {
	return config.Function == Jaccard || config.Function == Dice || config.Function == Tversky
}

// SimilarityMatrix is a square sparse matrix of similarities. Row i holds the
// neighbors of entity i. Entries are stored both by row and by column.
type SimilarityMatrix struct {
	size       int
	rowIndptr  []int
	rowIndices []int32
	rowValues  []float32
	colIndptr  []int
	colIndices []int32
	colValues  []float32
}

func newSimilarityMatrix(rows [][]heap.Elem[int32, float32]) *SimilarityMatrix {
	sim := &SimilarityMatrix{size: len(rows)}
	sim.rowIndptr = make([]int, len(rows)+1)
	sim.colIndptr = make([]int, len(rows)+1)
	for i, row := range rows {
		sort.Slice(row, func(a, b int) bool {
			return row[a].Value < row[b].Value
		})
		sim.rowIndptr[i+1] = sim.rowIndptr[i] + len(row)
		for _, elem := range row {
			sim.colIndptr[elem.Value+1]++
		}
	}
	nnz := sim.rowIndptr[len(rows)]
	sim.rowIndices = make([]int32, 0, nnz)
	sim.rowValues = make([]float32, 0, nnz)
	for _, row := range rows {
		for _, elem := range row {
			sim.rowIndices = append(sim.rowIndices, elem.Value)
			sim.rowValues = append(sim.rowValues, elem.Weight)
		}
	}
	for j := 0; j < len(rows); j++ {
		sim.colIndptr[j+1] += sim.colIndptr[j]
	}
	sim.colIndices = make([]int32, nnz)
	sim.colValues = make([]float32, nnz)
	cursor := append([]int(nil), sim.colIndptr[:len(rows)]...)
	for i, row := range rows {
		for _, elem := range row {
			pos := cursor[elem.Value]
			sim.colIndices[pos], sim.colValues[pos] = int32(i), elem.Weight
			cursor[elem.Value]++
		}
	}
	return sim
}

// Size returns the number of entities.
func (sim *SimilarityMatrix) Size() int {
	return sim.size
}

// CountNonZero returns the number of stored similarities.
func (sim *SimilarityMatrix) CountNonZero() int {
	return len(sim.rowIndices)
}

// Row returns the neighbors of entity i and their similarities, sorted by index.
func (sim *SimilarityMatrix) Row(i int32) ([]int32, []float32) {
	if i < 0 || int(i) >= sim.size {
		return nil, nil
	}
	begin, end := sim.rowIndptr[i], sim.rowIndptr[i+1]
	return sim.rowIndices[begin:end], sim.rowValues[begin:end]
}

// Column returns the entities having j as a neighbor and their similarities, sorted by index.
func (sim *SimilarityMatrix) Column(j int32) ([]int32, []float32) {
	if j < 0 || int(j) >= sim.size {
		return nil, nil
	}
	begin, end := sim.colIndptr[j], sim.colIndptr[j+1]
	return sim.colIndices[begin:end], sim.colValues[begin:end]
}

// Get returns the similarity of neighbor j in row i.
func (sim *SimilarityMatrix) Get(i, j int32) float32 {
	indices, values := sim.Row(i)
	k := sort.Search(len(indices), func(k int) bool {
		return indices[k] >= j
	})
	if k < len(indices) && indices[k] == j {
		return values[k]
	}
	return 0
}

// entityStats holds per entity statistics used by similarity denominators.
type entityStats struct {
	count []float32 // support size
	norm  []float32 // L2 norm of (centered) weights
	sqr   []float32 // squared L2 norm of weights
	mean  []float32 // mean of weights, only for pearson
}

// ComputeSimilarity computes the top-k similarity matrix between items (or users)
// of an interaction matrix. Similarities are accumulated through the inverted
// index, so only pairs sharing at least one interaction are visited.
func ComputeSimilarity(ctx context.Context, matrix *dataset.Matrix, config SimilarityConfig, jobs int) (*SimilarityMatrix, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	// rows of entities are entities, columns are features
	entities := matrix
	if config.Axis == ItemBased {
		entities = matrix.Transpose()
	}
	numEntities := entities.CountUsers()
	stats := newEntityStats(entities, config)
	jobs = max(jobs, 1)
	inner := make([][]float32, jobs)
	overlap := make([][]float32, jobs)
	touched := make([]*bitset.BitSet, jobs)
	candidates := make([][]int32, jobs)
	for i := 0; i < jobs; i++ {
		inner[i] = make([]float32, numEntities)
		overlap[i] = make([]float32, numEntities)
		touched[i] = bitset.New(uint(numEntities))
	}
	rows := make([][]heap.Elem[int32, float32], numEntities)
	err := parallel.Parallel(ctx, numEntities, jobs, func(workerId, jobId int) error {
		e := int32(jobId)
		features, weights := entities.UserFeedback(e)
		candidates[workerId] = candidates[workerId][:0]
		for k, f := range features {
			a := stats.value(e, weights[k], config)
			others, otherWeights := entities.ItemFeedback(f)
			for l, o := range others {
				if o == e {
					continue
				}
				if !touched[workerId].Test(uint(o)) {
					touched[workerId].Set(uint(o))
					candidates[workerId] = append(candidates[workerId], o)
				}
				inner[workerId][o] += a * stats.value(o, otherWeights[l], config)
				overlap[workerId][o]++
			}
		}
		filter := heap.NewTopKFilter[int32, float32](config.TopK)
		for _, o := range candidates[workerId] {
			s := stats.similarity(e, o, inner[workerId][o], overlap[workerId][o], config)
			if s != 0 && !math32.IsNaN(s) {
				filter.Push(o, s)
			}
			inner[workerId][o] = 0
			overlap[workerId][o] = 0
			touched[workerId].Clear(uint(o))
		}
		rows[e] = filter.PopAll()
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	sim := newSimilarityMatrix(rows)
	log.Logger().Debug("compute similarity",
		zap.String("axis", config.Axis.String()),
		zap.String("similarity", config.Function),
		zap.Int("n_entities", numEntities),
		zap.Int("n_neighbors", sim.CountNonZero()))
	return sim, nil
}

func newEntityStats(entities *dataset.Matrix, config SimilarityConfig) *entityStats {
	n := entities.CountUsers()
	stats := &entityStats{
		count: make([]float32, n),
		norm:  make([]float32, n),
		sqr:   make([]float32, n),
	}
	if config.Function == Pearson {
		stats.mean = make([]float32, n)
	}
	for e := int32(0); int(e) < n; e++ {
		_, weights := entities.UserFeedback(e)
		stats.count[e] = float32(len(weights))
		if stats.mean != nil && len(weights) > 0 {
			var sum float32
			for _, w := range weights {
				sum += w
			}
			stats.mean[e] = sum / float32(len(weights))
		}
		for _, w := range weights {
			v := stats.value(e, w, config)
			stats.sqr[e] += v * v
		}
		stats.norm[e] = math32.Sqrt(stats.sqr[e])
	}
	return stats
}

// value transforms the weight of an entity before accumulating inner products.
func (stats *entityStats) value(e int32, w float32, config SimilarityConfig) float32 {
	if config.binary() {
		return 1
	}
	if stats.mean != nil {
		return w - stats.mean[e]
	}
	return w
}

func (stats *entityStats) similarity(a, b int32, inner, overlap float32, config SimilarityConfig) float32 {
	var numerator, denominator float32
	switch config.Function {
	case Cosine, Pearson:
		numerator = inner
		denominator = stats.norm[a]*stats.norm[b] + config.Shrink
	case AsymmetricCosine:
		numerator = inner
		denominator = math32.Pow(stats.sqr[a], config.AsymmetricAlpha)*
			math32.Pow(stats.sqr[b], 1-config.AsymmetricAlpha) + config.Shrink
	case Jaccard:
		numerator = overlap
		denominator = stats.count[a] + stats.count[b] - overlap + config.Shrink
	case Dice:
		numerator = 2 * overlap
		denominator = stats.count[a] + stats.count[b] + config.Shrink
	case Tversky:
		numerator = overlap
		denominator = overlap +
			config.TverskyAlpha*(stats.count[a]-overlap) +
			config.TverskyBeta*(stats.count[b]-overlap) + config.Shrink
	}
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}
