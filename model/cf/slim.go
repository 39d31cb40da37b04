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
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorse-io/cfkit/common/heap"
	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// SLIMBPR learns a sparse item-item weight matrix S by Bayesian personalized
// ranking. For a user u with seen items L, a seen item i and an unseen item j:
//
//	x_uij = \sum_{l \in L} (S_il - S_jl)
//	S_iL += Lr (\sigma(-x_uij) - LambdaI S_iL)
//	S_jL += Lr (-\sigma(-x_uij) - LambdaJ S_jL)
//
// The diagonal of S stays zero. After training, every row of S keeps its TopK
// largest weights and users are scored like ItemKNN.
//
// Hyper-parameters:
//
//	NEpochs				- The number of epochs. Default is 30.
//	Lr					- The learning rate. Default is 0.05.
//	LambdaI				- The regularization of positive items. Default is 0.0025.
//	LambdaJ				- The regularization of negative items. Default is 0.00025.
//	TopK				- The number of weights kept per item. Default is 100.
//	PositiveThreshold	- The minimal weight of a seen item. Default is 0, all interactions are seen.
type SLIMBPR struct {
	model.BaseModel
	nEpochs           int
	lr                float32
	lambdaI           float32
	lambdaJ           float32
	topK              int
	positiveThreshold float32
	// fitted state
	trainSet *dataset.Matrix
	sim      *SimilarityMatrix
}

// NewSLIMBPR creates a SLIM BPR model.
func NewSLIMBPR(params model.Params) *SLIMBPR {
	slim := new(SLIMBPR)
	slim.SetParams(params)
	return slim
}

func (slim *SLIMBPR) SetParams(params model.Params) {
	slim.BaseModel.SetParams(params)
	slim.nEpochs = slim.Params.GetInt(model.NEpochs, 30)
	slim.lr = slim.Params.GetFloat32(model.Lr, 0.05)
	slim.lambdaI = slim.Params.GetFloat32(model.LambdaI, 0.0025)
	slim.lambdaJ = slim.Params.GetFloat32(model.LambdaJ, 0.00025)
	slim.topK = slim.Params.GetInt(model.TopK, 100)
	slim.positiveThreshold = slim.Params.GetFloat32(model.PositiveThreshold, 0)
}

func (slim *SLIMBPR) validate() error {
	if err := slim.Params.Validate(); err != nil {
		return errors.Trace(err)
	}
	if slim.nEpochs <= 0 {
		return invalidParam(model.NEpochs, slim.nEpochs, "> 0")
	}
	if !(slim.lr > 0) {
		return invalidParam(model.Lr, slim.lr, "> 0")
	}
	if !(slim.lambdaI >= 0) {
		return invalidParam(model.LambdaI, slim.lambdaI, ">= 0")
	}
	if !(slim.lambdaJ >= 0) {
		return invalidParam(model.LambdaJ, slim.lambdaJ, ">= 0")
	}
	if slim.topK <= 0 {
		return invalidParam(model.TopK, slim.topK, "> 0")
	}
	if math32.IsNaN(slim.positiveThreshold) {
		return invalidParam(model.PositiveThreshold, slim.positiveThreshold, "a number")
	}
	return nil
}

func (slim *SLIMBPR) Fit(ctx context.Context, trainSet *dataset.Matrix, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	slim.Clear()
	if err := slim.validate(); err != nil {
		return errors.Trace(err)
	}
	if err := checkTrainSet(trainSet); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit slim-bpr",
		zap.Int("train_set_size", trainSet.CountFeedback()),
		zap.Any("params", slim.GetParams()),
		zap.Any("config", config))
	slim.ResetRandomGenerator()
	rng := slim.GetRandomGenerator()
	numItems := trainSet.CountItems()
	positive := trainSet.Threshold(slim.positiveThreshold)
	// users having seen at least one and not all items
	users := make([]int32, 0, positive.CountUsers())
	seen := make(map[int32]func(int32) bool)
	for _, userId := range positive.Users() {
		if n := positive.CountUserFeedback(userId); n < numItems {
			users = append(users, userId)
			set := positive.UserSet(userId)
			seen[userId] = func(itemId int32) bool { return set.Contains(itemId) }
		}
	}
	s := make([][]float32, numItems)
	for i := range s {
		s[i] = make([]float32, numItems)
	}
	for epoch := 1; epoch <= slim.nEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		fitStart := time.Now()
		cost := float32(0)
		for sample := 0; sample < positive.CountFeedback() && len(users) > 0; sample++ {
			userId := users[rng.Intn(len(users))]
			items, _ := positive.UserFeedback(userId)
			i := items[rng.Intn(len(items))]
			j := rng.SampleNegative(int32(numItems), seen[userId])
			xuij := float32(0)
			for _, l := range items {
				xuij += s[i][l] - s[j][l]
			}
			cost += math32.Log1p(math32.Exp(-xuij))
			gradient := 1 / (1 + math32.Exp(xuij))
			for _, l := range items {
				s[i][l] += slim.lr * (gradient - slim.lambdaI*s[i][l])
				s[j][l] += slim.lr * (-gradient - slim.lambdaJ*s[j][l])
			}
			s[i][i] = 0
			s[j][j] = 0
		}
		if epoch%config.Verbose == 0 || epoch == slim.nEpochs {
			log.Logger().Debug(fmt.Sprintf("fit slim-bpr %v/%v", epoch, slim.nEpochs),
				zap.Float32("cost", cost),
				zap.String("fit_time", time.Since(fitStart).String()))
		}
	}
	// keep top k weights per item
	rows := make([][]heap.Elem[int32, float32], numItems)
	for i := range s {
		filter := heap.NewTopKFilter[int32, float32](slim.topK)
		for l, w := range s[i] {
			if l != i && w != 0 {
				filter.Push(int32(l), w)
			}
		}
		rows[i] = filter.PopAll()
	}
	slim.trainSet = trainSet
	slim.sim = newSimilarityMatrix(rows)
	log.Logger().Info("fit slim-bpr complete", zap.Int("n_weights", slim.sim.CountNonZero()))
	return nil
}

// Weights returns the sparsified item-item weights. Row i holds the weights of
// items contributing to the score of item i.
func (slim *SLIMBPR) Weights() *SimilarityMatrix {
	return slim.sim
}

func (slim *SLIMBPR) ScoreUsers(users []int32) (map[int32][]float32, error) {
	if slim.Invalid() {
		return nil, errors.Trace(model.ErrNotFitted)
	}
	if err := checkUsers(users); err != nil {
		return nil, err
	}
	result := make(map[int32][]float32, len(users))
	for _, userId := range users {
		result[userId] = scoreByItemNeighbors(slim.trainSet, slim.sim, userId, false)
	}
	return result, nil
}

func (slim *SLIMBPR) CountItems() int {
	if slim.trainSet == nil {
		return 0
	}
	return slim.trainSet.CountItems()
}

func (slim *SLIMBPR) Clear() {
	slim.trainSet = nil
	slim.sim = nil
}

func (slim *SLIMBPR) Invalid() bool {
	return slim == nil || slim.trainSet == nil || slim.sim == nil
}
