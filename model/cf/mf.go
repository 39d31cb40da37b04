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

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	"github.com/gorse-io/cfkit/common/floats"
	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/common/parallel"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// BaseMatrixFactorization holds latent factors and biases:
//
//	score(u, i) = p_u^T q_i + b_u + b_i
type BaseMatrixFactorization struct {
	model.BaseModel
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Model parameters
	UserFactor [][]float32 // p_u
	ItemFactor [][]float32 // q_i
	UserBias   []float32   // b_u
	ItemBias   []float32   // b_i
	// Hyper parameters
	nFactors   int
	nEpochs    int
	reg        float32
	initMean   float32
	initStdDev float32
	useBias    bool
	coldUser   string
}

func (baseModel *BaseMatrixFactorization) SetParams(params model.Params) {
	baseModel.BaseModel.SetParams(params)
	baseModel.initMean = baseModel.Params.GetFloat32(model.InitMean, 0)
	baseModel.useBias = baseModel.Params.GetBool(model.UseBias, false)
	baseModel.coldUser = baseModel.Params.GetString(model.ColdUser, ColdUserBias)
}

func (baseModel *BaseMatrixFactorization) validate() error {
	if err := baseModel.Params.Validate(); err != nil {
		return errors.Trace(err)
	}
	if baseModel.nFactors <= 0 {
		return invalidParam(model.NFactors, baseModel.nFactors, "> 0")
	}
	if baseModel.nEpochs <= 0 {
		return invalidParam(model.NEpochs, baseModel.nEpochs, "> 0")
	}
	if !(baseModel.reg >= 0) {
		return invalidParam(model.Reg, baseModel.reg, ">= 0")
	}
	if !(baseModel.initStdDev >= 0) {
		return invalidParam(model.InitStdDev, baseModel.initStdDev, ">= 0")
	}
	if baseModel.coldUser != ColdUserBias && baseModel.coldUser != ColdUserFail {
		return invalidParam(model.ColdUser, baseModel.coldUser, ColdUserBias+" or "+ColdUserFail)
	}
	return nil
}

// Init draws initial factors and marks users and items with feedback as predictable.
func (baseModel *BaseMatrixFactorization) Init(trainSet *dataset.Matrix) {
	baseModel.ResetRandomGenerator()
	rng := baseModel.GetRandomGenerator()
	baseModel.UserFactor = rng.NormalMatrix(trainSet.CountUsers(), baseModel.nFactors, baseModel.initMean, baseModel.initStdDev)
	baseModel.ItemFactor = rng.NormalMatrix(trainSet.CountItems(), baseModel.nFactors, baseModel.initMean, baseModel.initStdDev)
	baseModel.UserBias = make([]float32, trainSet.CountUsers())
	baseModel.ItemBias = make([]float32, trainSet.CountItems())
	// set user trained flags
	baseModel.UserPredictable = bitset.New(uint(trainSet.CountUsers()))
	for userIndex := int32(0); int(userIndex) < trainSet.CountUsers(); userIndex++ {
		if trainSet.CountUserFeedback(userIndex) > 0 {
			baseModel.UserPredictable.Set(uint(userIndex))
		}
	}
	// set item trained flags
	baseModel.ItemPredictable = bitset.New(uint(trainSet.CountItems()))
	for itemIndex := int32(0); int(itemIndex) < trainSet.CountItems(); itemIndex++ {
		if users, _ := trainSet.ItemFeedback(itemIndex); len(users) > 0 {
			baseModel.ItemPredictable.Set(uint(itemIndex))
		}
	}
}

// IsUserPredictable returns false if user has no feedback and its embedding vector never be trained.
func (baseModel *BaseMatrixFactorization) IsUserPredictable(userIndex int32) bool {
	if userIndex < 0 || int(userIndex) >= len(baseModel.UserFactor) {
		return false
	}
	return baseModel.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if item has no feedback and its embedding vector never be trained.
func (baseModel *BaseMatrixFactorization) IsItemPredictable(itemIndex int32) bool {
	if itemIndex < 0 || int(itemIndex) >= len(baseModel.ItemFactor) {
		return false
	}
	return baseModel.ItemPredictable.Test(uint(itemIndex))
}

// GetUserFactor returns the latent factor of a user.
func (baseModel *BaseMatrixFactorization) GetUserFactor(userIndex int32) []float32 {
	return baseModel.UserFactor[userIndex]
}

// GetItemFactor returns the latent factor of an item.
func (baseModel *BaseMatrixFactorization) GetItemFactor(itemIndex int32) []float32 {
	return baseModel.ItemFactor[itemIndex]
}

func (baseModel *BaseMatrixFactorization) internalPredict(userIndex, itemIndex int32) float32 {
	ret := floats.Dot(baseModel.UserFactor[userIndex], baseModel.ItemFactor[itemIndex])
	if baseModel.useBias {
		ret += baseModel.UserBias[userIndex] + baseModel.ItemBias[itemIndex]
	}
	return ret
}

// ScoreUsers scores every item for users. Users without training feedback are
// scored by item biases, or rejected with model.ErrColdUser if the ColdUser
// policy is "fail".
func (baseModel *BaseMatrixFactorization) ScoreUsers(users []int32) (map[int32][]float32, error) {
	if baseModel.Invalid() {
		return nil, errors.Trace(model.ErrNotFitted)
	}
	if err := checkUsers(users); err != nil {
		return nil, err
	}
	result := make(map[int32][]float32, len(users))
	for _, userId := range users {
		scores := make([]float32, len(baseModel.ItemFactor))
		if baseModel.IsUserPredictable(userId) {
			for itemId := range scores {
				scores[itemId] = baseModel.internalPredict(userId, int32(itemId))
			}
		} else if baseModel.coldUser == ColdUserFail {
			return nil, errors.Annotatef(model.ErrColdUser, "user %d", userId)
		} else if baseModel.useBias {
			copy(scores, baseModel.ItemBias)
		}
		result[userId] = scores
	}
	return result, nil
}

func (baseModel *BaseMatrixFactorization) CountItems() int {
	return len(baseModel.ItemFactor)
}

func (baseModel *BaseMatrixFactorization) Clear() {
	baseModel.UserPredictable = nil
	baseModel.ItemPredictable = nil
	baseModel.UserFactor = nil
	baseModel.ItemFactor = nil
	baseModel.UserBias = nil
	baseModel.ItemBias = nil
}

func (baseModel *BaseMatrixFactorization) Invalid() bool {
	return baseModel == nil ||
		baseModel.UserPredictable == nil ||
		baseModel.ItemPredictable == nil ||
		baseModel.ItemFactor == nil ||
		baseModel.UserFactor == nil
}

// BPR means Bayesian Personal Ranking, is a pairwise learning algorithm for matrix factorization
// model with implicit feedback. The pairwise ranking between item i and j for user u is estimated
// by:
//
//	p(i >_u j) = \sigma( p_u^T (q_i - q_j) + b_i - b_j )
//
// Hyper-parameters:
//
//	 Reg 		- The regularization parameter of the cost function that is
//				  optimized. Default is 0.01.
//	 Lr 		- The learning rate of SGD. Default is 0.05.
//	 nFactors	- The number of latent factors. Default is 16.
//	 NEpochs	- The number of iteration of the SGD procedure. Default is 100.
//	 InitMean	- The mean of initial random latent factors. Default is 0.
//	 InitStdDev	- The standard deviation of initial random latent factors. Default is 0.001.
//	 UseBias	- Learn item biases. Default is false.
//	 ColdUser	- Policy for users without feedback, "bias" or "fail". Default is "bias".
//
// Each epoch draws as many (user, positive, negative) triples as there are
// interactions and updates them sequentially, so training is reproducible
// given RandomState.
type BPR struct {
	BaseMatrixFactorization
	lr float32
}

// NewBPR creates a BPR model.
func NewBPR(params model.Params) *BPR {
	bpr := new(BPR)
	bpr.SetParams(params)
	return bpr
}

// SetParams sets hyper-parameters of the BPR model.
func (bpr *BPR) SetParams(params model.Params) {
	bpr.BaseMatrixFactorization.SetParams(params)
	// Setup hyper-parameters
	bpr.nFactors = bpr.Params.GetInt(model.NFactors, 16)
	bpr.nEpochs = bpr.Params.GetInt(model.NEpochs, 100)
	bpr.lr = bpr.Params.GetFloat32(model.Lr, 0.05)
	bpr.reg = bpr.Params.GetFloat32(model.Reg, 0.01)
	bpr.initStdDev = bpr.Params.GetFloat32(model.InitStdDev, 0.001)
}

// Fit the BPR model. Its task complexity is O(bpr.nEpochs).
func (bpr *BPR) Fit(ctx context.Context, trainSet *dataset.Matrix, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	bpr.Clear()
	if err := bpr.validate(); err != nil {
		return errors.Trace(err)
	}
	if !(bpr.lr > 0) {
		return invalidParam(model.Lr, bpr.lr, "> 0")
	}
	if err := checkTrainSet(trainSet); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit bpr",
		zap.Int("train_set_size", trainSet.CountFeedback()),
		zap.Any("params", bpr.GetParams()),
		zap.Any("config", config))
	bpr.Init(trainSet)
	rng := bpr.GetRandomGenerator()
	// users having at least one positive and one negative item
	numItems := int32(trainSet.CountItems())
	users := make([]int32, 0, trainSet.CountUsers())
	for _, userId := range trainSet.Users() {
		if trainSet.CountUserFeedback(userId) < int(numItems) {
			users = append(users, userId)
		}
	}
	userSets := make(map[int32]func(int32) bool, len(users))
	for _, userId := range users {
		set := trainSet.UserSet(userId)
		userSets[userId] = func(itemId int32) bool { return set.Contains(itemId) }
	}
	// Create buffers
	temp := make([]float32, bpr.nFactors)
	userFactor := make([]float32, bpr.nFactors)
	positiveItemFactor := make([]float32, bpr.nFactors)
	negativeItemFactor := make([]float32, bpr.nFactors)
	// Training
	for epoch := 1; epoch <= bpr.nEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			bpr.Clear()
			return errors.Trace(err)
		}
		fitStart := time.Now()
		cost := float32(0)
		for sample := 0; sample < trainSet.CountFeedback() && len(users) > 0; sample++ {
			// Select a user, a positive item and a negative item
			userIndex := users[rng.Intn(len(users))]
			items, _ := trainSet.UserFeedback(userIndex)
			posIndex := items[rng.Intn(len(items))]
			negIndex := rng.SampleNegative(numItems, userSets[userIndex])
			diff := bpr.internalPredict(userIndex, posIndex) - bpr.internalPredict(userIndex, negIndex)
			cost += math32.Log1p(math32.Exp(-diff))
			grad := math32.Exp(-diff) / (1.0 + math32.Exp(-diff))
			// Pairwise update
			copy(userFactor, bpr.UserFactor[userIndex])
			copy(positiveItemFactor, bpr.ItemFactor[posIndex])
			copy(negativeItemFactor, bpr.ItemFactor[negIndex])
			// Update positive item latent factor: +w_u
			floats.MulConstTo(userFactor, grad, temp)
			floats.MulConstAdd(positiveItemFactor, -bpr.reg, temp)
			floats.MulConstAdd(temp, bpr.lr, bpr.ItemFactor[posIndex])
			// Update negative item latent factor: -w_u
			floats.MulConstTo(userFactor, -grad, temp)
			floats.MulConstAdd(negativeItemFactor, -bpr.reg, temp)
			floats.MulConstAdd(temp, bpr.lr, bpr.ItemFactor[negIndex])
			// Update user latent factor: h_i-h_j
			floats.SubTo(positiveItemFactor, negativeItemFactor, temp)
			floats.MulConst(temp, grad)
			floats.MulConstAdd(userFactor, -bpr.reg, temp)
			floats.MulConstAdd(temp, bpr.lr, bpr.UserFactor[userIndex])
			// Update item biases
			if bpr.useBias {
				bpr.ItemBias[posIndex] += bpr.lr * (grad - bpr.reg*bpr.ItemBias[posIndex])
				bpr.ItemBias[negIndex] += bpr.lr * (-grad - bpr.reg*bpr.ItemBias[negIndex])
			}
		}
		if epoch%config.Verbose == 0 || epoch == bpr.nEpochs {
			log.Logger().Debug(fmt.Sprintf("fit bpr %v/%v", epoch, bpr.nEpochs),
				zap.Float32("cost", cost),
				zap.String("fit_time", time.Since(fitStart).String()))
		}
	}
	log.Logger().Info("fit bpr complete")
	return nil
}

// ALS is the weighted alternating least squares model for implicit feedback [1]. It
// minimizes
//
//	\sum_{u,i} c_{ui} (r_{ui} - p_u^T q_i - b_u - b_i)^2 + Reg (|P|^2 + |Q|^2 + |b|^2)
//
// where r_{ui} = 1 and c_{ui} = 1 + Alpha w_{ui} for observed interactions and
// r_{ui} = 0, c_{ui} = 1 otherwise. Every epoch solves each user row and then
// each item row in closed form, so the loss never increases.
//
// Hyper-parameters:
//
//	NFactors	- The number of latent factors. Default is 16.
//	NEpochs		- The number of epochs. Default is 15.
//	Reg			- The regularization strength. Default is 0.06.
//	Alpha		- The confidence scale of observed interactions. Default is 1.
//	InitMean	- The mean of initial latent factors. Default is 0.
//	InitStdDev	- The standard deviation of initial latent factors. Default is 0.1.
//	UseBias		- Learn user and item biases. Default is false.
//	ColdUser	- Policy for users without feedback, "bias" or "fail". Default is "bias".
//
// [1] Hu, Yifan, Yehuda Koren, and Chris Volinsky. "Collaborative filtering for
// implicit feedback datasets." 2008 Eighth IEEE International Conference on Data
// Mining. IEEE, 2008.
type ALS struct {
	BaseMatrixFactorization
	alpha    float32
	trainSet *dataset.Matrix
}

// NewALS creates an ALS model.
func NewALS(params model.Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS model.
func (als *ALS) SetParams(params model.Params) {
	als.BaseMatrixFactorization.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 16)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 15)
	als.reg = als.Params.GetFloat32(model.Reg, 0.06)
	als.alpha = als.Params.GetFloat32(model.Alpha, 1)
	als.initStdDev = als.Params.GetFloat32(model.InitStdDev, 0.1)
}

// Fit the ALS model.
func (als *ALS) Fit(ctx context.Context, trainSet *dataset.Matrix, config *FitConfig) error {
	config = config.LoadDefaultIfNil()
	als.Clear()
	if err := als.validate(); err != nil {
		return errors.Trace(err)
	}
	if !(als.alpha >= 0) {
		return invalidParam(model.Alpha, als.alpha, ">= 0")
	}
	if err := checkTrainSet(trainSet); err != nil {
		return errors.Trace(err)
	}
	log.Logger().Info("fit als",
		zap.Int("train_set_size", trainSet.CountFeedback()),
		zap.Any("params", als.GetParams()),
		zap.Any("config", config))
	als.Init(trainSet)
	als.trainSet = trainSet
	itemSet := trainSet.Transpose()
	for ep := 1; ep <= als.nEpochs; ep++ {
		fitStart := time.Now()
		// Update user factors
		if err := als.solve(ctx, config.Jobs, trainSet, als.UserFactor, als.UserBias, als.ItemFactor, als.ItemBias); err != nil {
			als.Clear()
			return errors.Trace(err)
		}
		// Update item factors
		if err := als.solve(ctx, config.Jobs, itemSet, als.ItemFactor, als.ItemBias, als.UserFactor, als.UserBias); err != nil {
			als.Clear()
			return errors.Trace(err)
		}
		if ep%config.Verbose == 0 || ep == als.nEpochs {
			log.Logger().Debug(fmt.Sprintf("fit als %v/%v", ep, als.nEpochs),
				zap.Float64("loss", als.Loss()),
				zap.String("fit_time", time.Since(fitStart).String()))
		}
	}
	log.Logger().Info("fit als complete")
	return nil
}

// dim returns the size of augmented factors [p, b].
func (als *ALS) dim() int {
	if als.useBias {
		return als.nFactors + 1
	}
	return als.nFactors
}

// solve updates x (rows of matrix) given the fixed side y (columns of matrix).
// With biases, row factors are augmented as [x, b_x] and fixed factors as
// [y, 1] with offsets b_y, so that each row is the solution of
//
//	(Y^T Y + \sum_obs (c-1) y y^T + Reg I) x = \sum_obs (c (1-o) + o) y - \sum_all o y
func (als *ALS) solve(ctx context.Context, jobs int, matrix *dataset.Matrix,
	x [][]float32, xBias []float32, y [][]float32, yBias []float32) error {
	d := als.dim()
	// Convert the fixed side to float64
	z := make([][]float64, len(y))
	offset := make([]float64, len(y))
	gram := mat.NewSymDense(d, nil)
	sum := mat.NewVecDense(d, nil)
	for j := range y {
		z[j] = make([]float64, d)
		for k, v := range y[j] {
			z[j][k] = float64(v)
		}
		if als.useBias {
			z[j][als.nFactors] = 1
			offset[j] = float64(yBias[j])
		}
		zj := mat.NewVecDense(d, z[j])
		gram.SymRankOne(gram, 1, zj)
		if offset[j] != 0 {
			sum.AddScaledVec(sum, offset[j], zj)
		}
	}
	// Create buffers
	jobs = max(jobs, 1)
	a := make([]*mat.SymDense, jobs)
	b := make([]*mat.VecDense, jobs)
	solution := make([]*mat.VecDense, jobs)
	chol := make([]mat.Cholesky, jobs)
	for i := 0; i < jobs; i++ {
		a[i] = mat.NewSymDense(d, nil)
		b[i] = mat.NewVecDense(d, nil)
		solution[i] = mat.NewVecDense(d, nil)
	}
	reg := float64(als.reg)
	alpha := float64(als.alpha)
	return parallel.Parallel(ctx, matrix.CountUsers(), jobs, func(workerId, rowIndex int) error {
		A, B, s := a[workerId], b[workerId], solution[workerId]
		A.CopySym(gram)
		for k := 0; k < d; k++ {
			A.SetSym(k, k, A.At(k, k)+reg)
		}
		B.ScaleVec(-1, sum)
		indices, weights := matrix.UserFeedback(int32(rowIndex))
		for l, j := range indices {
			c := 1 + alpha*float64(weights[l])
			zj := mat.NewVecDense(d, z[j])
			A.SymRankOne(A, c-1, zj)
			B.AddScaledVec(B, c*(1-offset[j])+offset[j], zj)
		}
		if ok := chol[workerId].Factorize(A); ok {
			if err := chol[workerId].SolveVecTo(s, B); err != nil {
				// keep the previous factor if the system is ill-conditioned
				log.Logger().Debug("skip ill-conditioned als row",
					zap.Int("row", rowIndex), zap.Error(err))
				return nil
			}
		} else if err := s.SolveVec(A, B); err != nil {
			// keep the previous factor if the system is singular
			return nil
		}
		for k := 0; k < als.nFactors; k++ {
			x[rowIndex][k] = float32(s.AtVec(k))
		}
		if als.useBias {
			xBias[rowIndex] = float32(s.AtVec(als.nFactors))
		}
		return nil
	})
}

// Loss returns the objective of the fitted model on its train set.
func (als *ALS) Loss() float64 {
	if als.Invalid() || als.trainSet == nil {
		return 0
	}
	// \sum_all pred^2 = \sum_u zu^T (\sum_i zi zi^T) zu with zu = [p_u, b_u, 1] and zi = [q_i, 1, b_i]
	d := als.nFactors
	if als.useBias {
		d += 2
	}
	userVector := func(u int) []float64 {
		v := make([]float64, d)
		for k, f := range als.UserFactor[u] {
			v[k] = float64(f)
		}
		if als.useBias {
			v[als.nFactors], v[als.nFactors+1] = float64(als.UserBias[u]), 1
		}
		return v
	}
	itemGram := mat.NewSymDense(d, nil)
	for i := range als.ItemFactor {
		v := make([]float64, d)
		for k, f := range als.ItemFactor[i] {
			v[k] = float64(f)
		}
		if als.useBias {
			v[als.nFactors], v[als.nFactors+1] = 1, float64(als.ItemBias[i])
		}
		itemGram.SymRankOne(itemGram, 1, mat.NewVecDense(d, v))
	}
	var loss float64
	for u := range als.UserFactor {
		zu := mat.NewVecDense(d, userVector(u))
		loss += mat.Inner(zu, itemGram, zu)
	}
	// Correct observed interactions
	for u := int32(0); int(u) < als.trainSet.CountUsers(); u++ {
		items, weights := als.trainSet.UserFeedback(u)
		for l, i := range items {
			pred := float64(als.internalPredict(u, i))
			c := 1 + float64(als.alpha)*float64(weights[l])
			loss += c*(1-pred)*(1-pred) - pred*pred
		}
	}
	// Regularization
	var norm float64
	for _, factor := range als.UserFactor {
		norm += float64(floats.Dot(factor, factor))
	}
	for _, factor := range als.ItemFactor {
		norm += float64(floats.Dot(factor, factor))
	}
	if als.useBias {
		norm += float64(floats.Dot(als.UserBias, als.UserBias))
		norm += float64(floats.Dot(als.ItemBias, als.ItemBias))
	}
	return loss + float64(als.reg)*norm
}

func (als *ALS) Clear() {
	als.BaseMatrixFactorization.Clear()
	als.trainSet = nil
}
