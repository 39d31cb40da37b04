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
	"reflect"

	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
)

// Cold user policies of latent factor models.
const (
	ColdUserBias = "bias" // score cold users by item biases (zeros without biases)
	ColdUserFail = "fail" // reject cold users with model.ErrColdUser
)

type FitConfig struct {
	Jobs    int
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// Recommender fits an interaction matrix and scores every item for users.
type Recommender interface {
	model.Model
	// Fit replaces the state of the recommender with one learned from trainSet.
	Fit(ctx context.Context, trainSet *dataset.Matrix, config *FitConfig) error
	// ScoreUsers returns a fresh score vector over all items for each user.
	// Scoring is read-only, so repeated calls return identical vectors.
	ScoreUsers(users []int32) (map[int32][]float32, error)
	// CountItems returns the number of items of the fitted state.
	CountItems() int
	// Invalid returns true if the recommender is not fitted.
	Invalid() bool
}

// EvidenceScorer is implemented by recommenders that may score items with
// evidence exactly 0. The bitset of a user marks the items scored from
// evidence. Other recommenders score items without evidence 0.
type EvidenceScorer interface {
	ScoreUsersWithEvidence(users []int32) (map[int32][]float32, map[int32]*bitset.BitSet, error)
}

// NewRecommender creates a recommender by name. Hybrid recommenders are
// created by NewHybrid.
func NewRecommender(name string, params model.Params) (Recommender, error) {
	switch name {
	case "item-knn":
		return NewItemKNN(params), nil
	case "user-knn":
		return NewUserKNN(params), nil
	case "als":
		return NewALS(params), nil
	case "bpr":
		return NewBPR(params), nil
	case "slim-bpr":
		return NewSLIMBPR(params), nil
	case "popular":
		return NewPopular(params), nil
	}
	return nil, errors.Annotatef(model.ErrInvalidConfiguration, "unknown recommender %q", name)
}

func GetModelName(m Recommender) string {
	switch m.(type) {
	case *ItemKNN:
		return "item-knn"
	case *UserKNN:
		return "user-knn"
	case *ALS:
		return "als"
	case *BPR:
		return "bpr"
	case *SLIMBPR:
		return "slim-bpr"
	case *Popular:
		return "popular"
	case *Hybrid:
		return "hybrid"
	default:
		return reflect.TypeOf(m).String()
	}
}

func checkUsers(users []int32) error {
	for _, userId := range users {
		if userId < 0 {
			return errors.Annotatef(model.ErrIndexOutOfRange, "user %d", userId)
		}
	}
	return nil
}

func checkTrainSet(trainSet *dataset.Matrix) error {
	if trainSet == nil || trainSet.CountFeedback() == 0 {
		return errors.Annotate(model.ErrEmptyDataset, "no interactions in train set")
	}
	return nil
}

func invalidParam(name model.ParamName, value any, expect string) error {
	return errors.Annotatef(model.ErrInvalidConfiguration, "%s = %v, expect %s", name, value, expect)
}
