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

	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Popular scores every item by the sum of its training weights. It is not
// personalized, so cold users get the same scores as everyone else.
type Popular struct {
	model.BaseModel
	popularity []float32
}

func NewPopular(params model.Params) *Popular {
	pop := new(Popular)
	pop.SetParams(params)
	return pop
}

func (pop *Popular) Fit(_ context.Context, trainSet *dataset.Matrix, _ *FitConfig) error {
	pop.Clear()
	if err := checkTrainSet(trainSet); err != nil {
		return errors.Trace(err)
	}
	pop.popularity = trainSet.ItemPopularity()
	log.Logger().Info("fit popular complete", zap.Int("n_items", len(pop.popularity)))
	return nil
}

func (pop *Popular) ScoreUsers(users []int32) (map[int32][]float32, error) {
	if pop.Invalid() {
		return nil, errors.Trace(model.ErrNotFitted)
	}
	if err := checkUsers(users); err != nil {
		return nil, err
	}
	result := make(map[int32][]float32, len(users))
	for _, userId := range users {
		result[userId] = append([]float32(nil), pop.popularity...)
	}
	return result, nil
}

func (pop *Popular) CountItems() int {
	return len(pop.popularity)
}

func (pop *Popular) Clear() {
	pop.popularity = nil
}

func (pop *Popular) Invalid() bool {
	return pop == nil || pop.popularity == nil
}
