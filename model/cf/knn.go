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
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// knn is the neighborhood model shared by ItemKNN and UserKNN.
type knn struct {
	model.BaseModel
	similarity SimilarityConfig
	normalize  bool
	// fitted state
	trainSet *dataset.Matrix
	sim      *SimilarityMatrix
}

func (m *knn) setParams(axis Axis, params model.Params) {
	m.BaseModel.SetParams(params)
	m.similarity = NewSimilarityConfig(axis, m.Params)
	m.normalize = m.Params.GetBool(model.Normalize, false)
}

func (m *knn) fit(ctx context.Context, name string, trainSet *dataset.Matrix, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	m.Clear()
	if err := m.Params.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := m.similarity.Validate(); err != nil {
		return errors.Trace(err)
	}
	if err := checkTrainSet(trainSet); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit "+name,
		zap.Int("train_set_size", trainSet.CountFeedback()),
		zap.Any("params", m.GetParams()),
		zap.Any("config", config))
	start := time.Now()
	sim, err := ComputeSimilarity(ctx, trainSet, m.similarity, config.Jobs)
	if err != nil {
		return errors.Trace(err)
	}
	m.trainSet, m.sim = trainSet, sim
	log.Logger().Info("fit "+name+" complete",
		zap.Int("n_neighbors", sim.CountNonZero()),
		zap.String("fit_time", time.Since(start).String()))
	return nil
}

// Similarity returns the fitted similarity matrix.
func (m *knn) Similarity() *SimilarityMatrix {
	return m.sim
}

func (m *knn) Clear() {
	m.trainSet = nil
	m.sim = nil
}

func (m *knn) Invalid() bool {
	return m == nil || m.trainSet == nil || m.sim == nil
}

func (m *knn) CountItems() int {
	if m.trainSet == nil {
		return 0
	}
	return m.trainSet.CountItems()
}

func (m *knn) checkScoring(users []int32) error {
	if m.Invalid() {
		return errors.Trace(model.ErrNotFitted)
	}
	return checkUsers(users)
}

// scoreByItemNeighbors computes score(u, i) = sum_j sim(i, j) * r(u, j) where j
// runs over the neighbors of i rated by u.
func scoreByItemNeighbors(trainSet *dataset.Matrix, sim *SimilarityMatrix, userId int32, normalize bool) []float32 {
	scores := make([]float32, trainSet.CountItems())
	var mass []float32
	if normalize {
		mass = make([]float32, len(scores))
	}
	items, weights := trainSet.UserFeedback(userId)
	for k, j := range items {
		neighbors, similarities := sim.Column(j)
		for l, i := range neighbors {
			scores[i] += similarities[l] * weights[k]
			if normalize {
				mass[i] += math32.Abs(similarities[l])
			}
		}
	}
	normalizeByMass(scores, mass)
	return scores
}

func normalizeByMass(scores, mass []float32) {
	for i := range mass {
		if mass[i] > 0 {
			scores[i] /= mass[i]
		} else {
			scores[i] = 0
		}
	}
}

// ItemKNN is the item-based neighborhood model:
//
//	score(u, i) = \sum_{j \in N(i)} sim(i, j) r(u, j)
//
// Hyper-parameters:
//
//	Similarity	- The similarity function. Default is cosine.
//	Shrink		- The shrink term added to similarity denominators. Default is 0.
//	TopK		- The number of neighbors kept per item. Default is 100.
//	Normalize	- Divide scores by the similarity mass of contributing neighbors. Default is false.
//
// Users without training feedback are scored zero for every item.
type ItemKNN struct {
	knn
}

// NewItemKNN creates an item-based neighborhood model.
func NewItemKNN(params model.Params) *ItemKNN {
	m := new(ItemKNN)
	m.SetParams(params)
	return m
}

func (m *ItemKNN) SetParams(params model.Params) {
	m.setParams(ItemBased, params)
}

func (m *ItemKNN) Fit(ctx context.Context, trainSet *dataset.Matrix, config *FitConfig) error {
	return m.fit(ctx, "item-knn", trainSet, config)
}

func (m *ItemKNN) ScoreUsers(users []int32) (map[int32][]float32, error) {
	if err := m.checkScoring(users); err != nil {
		return nil, err
	}
	result := make(map[int32][]float32, len(users))
	for _, userId := range users {
		result[userId] = scoreByItemNeighbors(m.trainSet, m.sim, userId, m.normalize)
	}
	return result, nil
}

// UserKNN is the user-based neighborhood model:
//
//	score(u, i) = \sum_{v \in N(u)} sim(u, v) r(v, i)
//
// It shares hyper-parameters with ItemKNN. Users without training feedback have
// no neighbors and are scored zero for every item.
type UserKNN struct {
	knn
}

// NewUserKNN creates a user-based neighborhood model.
func NewUserKNN(params model.Params) *UserKNN {
	m := new(UserKNN)
	m.SetParams(params)
	return m
}

func (m *UserKNN) SetParams(params model.Params) {
	m.setParams(UserBased, params)
}

func (m *UserKNN) Fit(ctx context.Context, trainSet *dataset.Matrix, config *FitConfig) error {
	return m.fit(ctx, "user-knn", trainSet, config)
}

func (m *UserKNN) ScoreUsers(users []int32) (map[int32][]float32, error) {
	if err := m.checkScoring(users); err != nil {
		return nil, err
	}
	result := make(map[int32][]float32, len(users))
	for _, userId := range users {
		scores := make([]float32, m.trainSet.CountItems())
		var mass []float32
		if m.normalize {
			mass = make([]float32, len(scores))
		}
		neighbors, similarities := m.sim.Row(userId)
		for k, v := range neighbors {
			items, weights := m.trainSet.UserFeedback(v)
			for l, i := range items {
				scores[i] += similarities[k] * weights[l]
				if m.normalize {
					mass[i] += math32.Abs(similarities[k])
				}
			}
		}
		normalizeByMass(scores, mass)
		result[userId] = scores
	}
	return result, nil
}
