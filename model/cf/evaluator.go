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
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/common/parallel"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

/* Evaluate Item Ranking */

// Metric is used by evaluators in personalized ranking tasks. rankList holds
// at most k items.
type Metric func(targetSet mapset.Set[int32], rankList []int32, k int) float32

type NamedMetric struct {
	Name   string
	Metric Metric
}

func truncate(rankList []int32, k int) []int32 {
	if len(rankList) > k {
		return rankList[:k]
	}
	return rankList
}

func countHits(targetSet mapset.Set[int32], rankList []int32) int {
	hit := 0
	for _, itemId := range rankList {
		if targetSet.Contains(itemId) {
			hit++
		}
	}
	return hit
}

// NDCG means Normalized Discounted Cumulative Gain.
func NDCG(targetSet mapset.Set[int32], rankList []int32, k int) float32 {
	rankList = truncate(rankList, k)
	// IDCG = \sum^{min(|REL|, k)}_{i=1} \frac {1} {\log_2(i+1)}
	idcg := float32(0)
	for i := 0; i < targetSet.Cardinality() && i < k; i++ {
		idcg += 1.0 / math32.Log2(float32(i)+2.0)
	}
	if idcg == 0 {
		return 0
	}
	// DCG = \sum^{N}_{i=1} \frac {2^{rel_i}-1} {\log_2(i+1)}
	dcg := float32(0)
	for i, itemId := range rankList {
		if targetSet.Contains(itemId) {
			dcg += 1.0 / math32.Log2(float32(i)+2.0)
		}
	}
	return dcg / idcg
}

// Precision is the fraction of relevant items among the recommended items.
//
//	\frac{|relevant documents| \cap |retrieved documents|} {|{retrieved documents}|}
func Precision(targetSet mapset.Set[int32], rankList []int32, k int) float32 {
	rankList = truncate(rankList, k)
	if len(rankList) == 0 {
		return 0
	}
	return float32(countHits(targetSet, rankList)) / float32(len(rankList))
}

// Recall is the fraction of relevant items that have been recommended over the total
// amount of relevant items.
//
//	\frac{|relevant documents| \cap |retrieved documents|} {|{relevant documents}|}
func Recall(targetSet mapset.Set[int32], rankList []int32, k int) float32 {
	if targetSet.Cardinality() == 0 {
		return 0
	}
	return float32(countHits(targetSet, truncate(rankList, k))) / float32(targetSet.Cardinality())
}

// HR means Hit Ratio.
func HR(targetSet mapset.Set[int32], rankList []int32, k int) float32 {
	if countHits(targetSet, truncate(rankList, k)) > 0 {
		return 1
	}
	return 0
}

// MAP means Mean Average Precision. The sum of precisions at hit positions is
// divided by min(k, |relevant|).
// mAP: http://sdsawtelle.github.io/blog/output/mean-average-precision-MAP-for-recommender-systems.html
func MAP(targetSet mapset.Set[int32], rankList []int32, k int) float32 {
	denominator := min(k, targetSet.Cardinality())
	if denominator == 0 {
		return 0
	}
	sumPrecision := float32(0)
	hit := 0
	for i, itemId := range truncate(rankList, k) {
		if targetSet.Contains(itemId) {
			hit++
			sumPrecision += float32(hit) / float32(i+1)
		}
	}
	return sumPrecision / float32(denominator)
}

// MRR means Mean Reciprocal Rank.
//
// The mean reciprocal rank is a statistic measure for evaluating any process
// that produces a list of possible responses to a sample of queries, ordered
// by probability of correctness. The reciprocal rank of a query response is
// the multiplicative inverse of the rank of the first correct answer: 1 for
// first place, 1/2 for second place, 1/3 for third place and so on.
//
//	MRR = \frac{1}{Q} \sum^{|Q|}_{i=1} \frac{1}{rank_i}
func MRR(targetSet mapset.Set[int32], rankList []int32, k int) float32 {
	for i, itemId := range truncate(rankList, k) {
		if targetSet.Contains(itemId) {
			return 1 / float32(i+1)
		}
	}
	return 0
}

// MetricAccumulator sums per-user values of a metric.
type MetricAccumulator struct {
	Sum   float64
	Count int
}

func (acc *MetricAccumulator) Add(value float32) {
	acc.Sum += float64(value)
	acc.Count++
}

func (acc *MetricAccumulator) Merge(other MetricAccumulator) {
	acc.Sum += other.Sum
	acc.Count += other.Count
}

// Mean returns the average value, or 0 if nothing has been added.
func (acc *MetricAccumulator) Mean() float32 {
	if acc.Count == 0 {
		return 0
	}
	return float32(acc.Sum / float64(acc.Count))
}

// MetricReport holds mean metric values over evaluated users.
type MetricReport struct {
	TopK     int
	Scores   map[string]float32
	NumUsers int
}

// Get returns the mean of a metric, or 0 if the metric was not computed.
func (report *MetricReport) Get(name string) float32 {
	return report.Scores[name]
}

// Names returns sorted metric names.
func (report *MetricReport) Names() []string {
	names := lo.Keys(report.Scores)
	sort.Strings(names)
	return names
}

// Evaluator evaluates recommenders on held-out relevant items.
type Evaluator struct {
	TopK    int
	Jobs    int
	Metrics []NamedMetric
	// SkipUnscored excludes items without evidence from ranked lists. They are
	// the items scored exactly zero, or those left unmarked by an EvidenceScorer.
	SkipUnscored bool
}

// NewEvaluator creates an evaluator of Precision, Recall, MAP and NDCG at k.
func NewEvaluator(k int) *Evaluator {
	return &Evaluator{
		TopK: k,
		Jobs: 1,
		Metrics: []NamedMetric{
			{Name: "Precision", Metric: Precision},
			{Name: "Recall", Metric: Recall},
			{Name: "MAP", Metric: MAP},
			{Name: "NDCG", Metric: NDCG},
		},
		SkipUnscored: true,
	}
}

func (e *Evaluator) SetJobs(jobs int) *Evaluator {
	e.Jobs = jobs
	return e
}

// Evaluate ranks the top k items of every test user with a non-empty relevant
// set, excluding its items in excludeSets, and averages metrics over these users.
// Users with empty relevant sets do not count.
func (e *Evaluator) Evaluate(ctx context.Context, recommender Recommender, testUsers []int32,
	relevanceSets, excludeSets map[int32]mapset.Set[int32]) (*MetricReport, error) {
	if e.TopK <= 0 {
		return nil, errors.Annotatef(model.ErrInvalidConfiguration, "k = %d, expect > 0", e.TopK)
	}
	if len(e.Metrics) == 0 {
		return nil, errors.Annotate(model.ErrInvalidConfiguration, "no metrics")
	}
	users := lo.Filter(lo.Uniq(testUsers), func(userId int32, _ int) bool {
		target, exist := relevanceSets[userId]
		return exist && target != nil && target.Cardinality() > 0
	})
	if len(users) == 0 {
		return nil, errors.Annotatef(model.ErrNoEvaluableUsers, "%d test users", len(testUsers))
	}
	start := time.Now()
	jobs := max(e.Jobs, 1)
	partial := make([][]MetricAccumulator, jobs)
	for i := range partial {
		partial[i] = make([]MetricAccumulator, len(e.Metrics))
	}
	var evaluated atomic.Int64
	err := parallel.Parallel(ctx, len(users), jobs, func(workerId, jobId int) error {
		userId := users[jobId]
		var (
			scores   map[int32][]float32
			evidence map[int32]*bitset.BitSet
			err      error
		)
		if scorer, ok := recommender.(EvidenceScorer); ok && e.SkipUnscored {
			scores, evidence, err = scorer.ScoreUsersWithEvidence([]int32{userId})
		} else {
			scores, err = recommender.ScoreUsers([]int32{userId})
		}
		if err != nil {
			return errors.Trace(err)
		}
		vector := scores[userId]
		scored := evidence[userId]
		exclude := excludeSets[userId]
		ranked, err := TopNFunc(vector, e.TopK, func(itemId int32) bool {
			if e.SkipUnscored {
				if scored != nil && !scored.Test(uint(itemId)) {
					return true
				}
				if scored == nil && vector[itemId] == 0 {
					return true
				}
			}
			return exclude != nil && exclude.Contains(itemId)
		})
		if err != nil {
			return errors.Trace(err)
		}
		rankList := ranked.Items()
		target := relevanceSets[userId]
		for i, metric := range e.Metrics {
			partial[workerId][i].Add(metric.Metric(target, rankList, e.TopK))
		}
		if n := evaluated.Inc(); n%10000 == 0 {
			log.Logger().Debug("evaluate", zap.Int64("n_evaluated", n), zap.Int("n_users", len(users)))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	// merge partial accumulators
	report := &MetricReport{
		TopK:     e.TopK,
		Scores:   make(map[string]float32, len(e.Metrics)),
		NumUsers: len(users),
	}
	for i, metric := range e.Metrics {
		var acc MetricAccumulator
		for workerId := range partial {
			acc.Merge(partial[workerId][i])
		}
		report.Scores[metric.Name] = acc.Mean()
	}
	log.Logger().Debug("evaluate complete",
		zap.String("recommender", GetModelName(recommender)),
		zap.Int("n_users", report.NumUsers),
		zap.Any("scores", report.Scores),
		zap.String("eval_time", time.Since(start).String()))
	return report, nil
}

// Evaluate evaluates a recommender with Precision, Recall, MAP and NDCG at k.
func Evaluate(ctx context.Context, recommender Recommender, testUsers []int32,
	relevanceSets map[int32]mapset.Set[int32], k int, excludeSets map[int32]mapset.Set[int32]) (*MetricReport, error) {
	return NewEvaluator(k).Evaluate(ctx, recommender, testUsers, relevanceSets, excludeSets)
}
