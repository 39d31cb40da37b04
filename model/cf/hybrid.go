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

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/cfkit/common/floats"
	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Hybrid combines the scores of several recommenders linearly:
//
//	score(u, i) = \sum_k w_k s_k(u, i)
//
// If normalize is true, each component's score vector is min-max normalized
// per user before combination. A constant vector is normalized to zeros.
// Items count as scored if any component gives them a nonzero raw score, even
// when their combined score is 0.
type Hybrid struct {
	model.BaseModel
	components []Recommender
	weights    []float32
	normalize  bool
}

// NewHybrid creates a hybrid recommender. At least two components are required
// and each component needs one weight.
func NewHybrid(components []Recommender, weights []float32, normalize bool) (*Hybrid, error) {
	if len(components) < 2 {
		return nil, errors.Annotatef(model.ErrInvalidConfiguration, "hybrid needs at least 2 components, got %d", len(components))
	}
	if len(components) != len(weights) {
		return nil, errors.Annotatef(model.ErrInvalidConfiguration, "%d components but %d weights", len(components), len(weights))
	}
	if lo.Contains(components, nil) {
		return nil, errors.Annotate(model.ErrInvalidConfiguration, "nil component")
	}
	hybrid := &Hybrid{
		components: components,
		weights:    weights,
	}
	hybrid.SetParams(model.Params{model.Normalize: normalize})
	return hybrid, nil
}

func (hybrid *Hybrid) SetParams(params model.Params) {
	hybrid.BaseModel.SetParams(params)
	hybrid.normalize = hybrid.Params.GetBool(model.Normalize, false)
}

// Components returns the combined recommenders.
func (hybrid *Hybrid) Components() []Recommender {
	return hybrid.components
}

// Fit fits every component in order.
func (hybrid *Hybrid) Fit(ctx context.Context, trainSet *dataset.Matrix, config *FitConfig) error {
	if err := hybrid.Params.Validate(); err != nil {
		return errors.Trace(err)
	}
	for _, component := range hybrid.components {
		if err := component.Fit(ctx, trainSet, config); err != nil {
			return errors.Annotatef(err, "fit %s", GetModelName(component))
		}
	}
	log.Logger().Info("fit hybrid complete",
		zap.Strings("components", lo.Map(hybrid.components, func(r Recommender, _ int) string {
			return GetModelName(r)
		})),
		zap.Float32s("weights", hybrid.weights))
	return nil
}

func (hybrid *Hybrid) ScoreUsers(users []int32) (map[int32][]float32, error) {
	scores, _, err := hybrid.ScoreUsersWithEvidence(users)
	return scores, err
}

// ScoreUsersWithEvidence scores users and marks the items that at least one
// component scored from evidence. Normalized scores of such items may be 0.
func (hybrid *Hybrid) ScoreUsersWithEvidence(users []int32) (map[int32][]float32, map[int32]*bitset.BitSet, error) {
	if err := checkUsers(users); err != nil {
		return nil, nil, err
	}
	// score components concurrently
	partial := make([]map[int32][]float32, len(hybrid.components))
	partialEvidence := make([]map[int32]*bitset.BitSet, len(hybrid.components))
	var g errgroup.Group
	for k, component := range hybrid.components {
		g.Go(func() error {
			var (
				scores map[int32][]float32
				err    error
			)
			if scorer, ok := component.(EvidenceScorer); ok {
				scores, partialEvidence[k], err = scorer.ScoreUsersWithEvidence(users)
			} else {
				scores, err = component.ScoreUsers(users)
			}
			if err != nil {
				return errors.Annotatef(err, "score %s", GetModelName(component))
			}
			partial[k] = scores
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	result := make(map[int32][]float32, len(users))
	evidence := make(map[int32]*bitset.BitSet, len(users))
	for _, userId := range users {
		numItems := len(partial[0][userId])
		combined := make([]float32, numItems)
		scored := bitset.New(uint(numItems))
		for k := range hybrid.components {
			scores := partial[k][userId]
			if len(scores) != numItems {
				return nil, nil, errors.Annotatef(model.ErrDimensionMismatch,
					"%s scores %d items but %s scores %d items",
					GetModelName(hybrid.components[0]), numItems, GetModelName(hybrid.components[k]), len(scores))
			}
			if partialEvidence[k] != nil {
				scored.InPlaceUnion(partialEvidence[k][userId])
			} else {
				for i, s := range scores {
					if s != 0 {
						scored.Set(uint(i))
					}
				}
			}
			if hybrid.normalize {
				scores = minMaxNormalize(scores)
			}
			floats.MulConstAdd(scores, hybrid.weights[k], combined)
		}
		result[userId] = combined
		evidence[userId] = scored
	}
	return result, evidence, nil
}

func minMaxNormalize(scores []float32) []float32 {
	normalized := make([]float32, len(scores))
	if len(scores) == 0 {
		return normalized
	}
	low, high := floats.MinMax(scores)
	if high == low {
		return normalized
	}
	for i, s := range scores {
		normalized[i] = (s - low) / (high - low)
	}
	return normalized
}

// CountItems returns the number of items of the first component.
func (hybrid *Hybrid) CountItems() int {
	return hybrid.components[0].CountItems()
}

func (hybrid *Hybrid) Clear() {
	for _, component := range hybrid.components {
		component.Clear()
	}
}

func (hybrid *Hybrid) Invalid() bool {
	return lo.SomeBy(hybrid.components, func(r Recommender) bool {
		return r.Invalid()
	})
}
