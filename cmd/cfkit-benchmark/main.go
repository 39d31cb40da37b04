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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorse-io/cfkit/common/log"
	"github.com/gorse-io/cfkit/config"
	"github.com/gorse-io/cfkit/dataset"
	"github.com/gorse-io/cfkit/model/cf"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "cfkit-benchmark",
	Short: "Collaborative filtering benchmarking tool",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Fit and evaluate configured recommenders",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		names, _ := cmd.Flags().GetStringSlice("recommender")
		if len(names) == 0 {
			names = lo.Map(cfg.Recommenders, func(rec config.RecommenderConfig, _ int) string { return rec.Name })
		}
		data, err := loadData(cfg)
		if err != nil {
			return err
		}
		results, err := evaluate(ctx, cfg, data, names)
		if err != nil {
			return err
		}
		renderResults(cfg.Evaluation.TopK, results)
		return nil
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print top-n recommendations of a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("recommender")
		user, _ := cmd.Flags().GetString("user")
		n, _ := cmd.Flags().GetInt("n")
		data, err := loadData(cfg)
		if err != nil {
			return err
		}
		userId, exist := data.loader.UserDict.Lookup(user)
		if !exist {
			return errors.NotFoundf("user %q", user)
		}
		r, err := cfg.NewRecommender(name)
		if err != nil {
			return errors.Trace(err)
		}
		if err = r.Fit(ctx, data.train, cfg.GetFitConfig()); err != nil {
			return errors.Trace(err)
		}
		scores, err := r.ScoreUsers([]int32{userId})
		if err != nil {
			return errors.Trace(err)
		}
		list, err := cf.TopN(scores[userId], data.train.UserSet(userId), n)
		if err != nil {
			return errors.Trace(err)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Item", "Score")
		for i, item := range list {
			itemName, _ := data.loader.ItemDict.String(item.ItemId)
			if err = table.Append([]string{
				fmt.Sprintf("%d", i+1),
				itemName,
				fmt.Sprintf("%v", item.Score),
			}); err != nil {
				return errors.Trace(err)
			}
		}
		return table.Render()
	},
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Annotatef(err, "load config %s", configPath)
	}
	return cfg, nil
}

type benchmarkData struct {
	loader *dataset.Loader
	train  *dataset.Matrix
	test   *dataset.Matrix
}

// loadData reads train and test files with shared indices.
func loadData(cfg *config.Config) (*benchmarkData, error) {
	loader := dataset.NewLoader(cfg.Data.Separator)
	trainTriples, err := loader.Load(cfg.Data.TrainPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	testTriples, err := loader.Load(cfg.Data.TestPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	numUsers, numItems := loader.Shape()
	train, err := dataset.FromTriples(numUsers, numItems, trainTriples)
	if err != nil {
		return nil, errors.Annotate(err, "train set")
	}
	test, err := dataset.FromTriples(numUsers, numItems, testTriples)
	if err != nil {
		return nil, errors.Annotate(err, "test set")
	}
	log.Logger().Info("load dataset",
		zap.Int("n_users", numUsers),
		zap.Int("n_items", numItems),
		zap.Int("train_set_size", train.CountFeedback()),
		zap.Int("test_set_size", test.CountFeedback()))
	return &benchmarkData{loader: loader, train: train, test: test}, nil
}

type evaluateResult struct {
	name     string
	report   *cf.MetricReport
	fitTime  time.Duration
	evalTime time.Duration
}

func evaluate(ctx context.Context, cfg *config.Config, data *benchmarkData, names []string) ([]evaluateResult, error) {
	evaluator := cfg.GetEvaluator()
	relevanceSets := dataset.RelevanceSets(data.test)
	excludeSets := dataset.ExclusionSets(data.train)
	testUsers := data.test.Users()
	runId := uuid.NewString()
	log.Logger().Info("start benchmark", zap.String("run_id", runId), zap.Strings("recommenders", names))
	bar := progressbar.Default(int64(len(names)), "evaluate")
	results := make([]evaluateResult, 0, len(names))
	for _, name := range names {
		bar.Describe(name)
		r, err := cfg.NewRecommender(name)
		if err != nil {
			return nil, errors.Trace(err)
		}
		start := time.Now()
		if err = r.Fit(ctx, data.train, cfg.GetFitConfig()); err != nil {
			return nil, errors.Annotatef(err, "fit %s", name)
		}
		fitTime := time.Since(start)
		start = time.Now()
		report, err := evaluator.Evaluate(ctx, r, testUsers, relevanceSets, excludeSets)
		if err != nil {
			return nil, errors.Annotatef(err, "evaluate %s", name)
		}
		results = append(results, evaluateResult{
			name:     name,
			report:   report,
			fitTime:  fitTime,
			evalTime: time.Since(start),
		})
		log.Logger().Info("evaluate "+name+" complete",
			zap.String("run_id", runId),
			zap.Int("n_users", report.NumUsers),
			zap.Any("scores", report.Scores))
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return results, nil
}

func renderResults(k int, results []evaluateResult) {
	if len(results) == 0 {
		return
	}
	metrics := results[0].report.Names()
	header := []string{"Recommender"}
	for _, metric := range metrics {
		header = append(header, fmt.Sprintf("%s@%d", metric, k))
	}
	header = append(header, "Users", "Fit Time", "Eval Time")
	table := tablewriter.NewWriter(os.Stdout)
	table.Header(lo.ToAnySlice(header)...)
	for _, result := range results {
		row := []string{result.name}
		for _, metric := range metrics {
			row = append(row, fmt.Sprintf("%.5f", result.report.Get(metric)))
		}
		row = append(row,
			fmt.Sprintf("%d", result.report.NumUsers),
			result.fitTime.String(),
			result.evalTime.String())
		if err := table.Append(row); err != nil {
			log.Logger().Error("failed to append row", zap.Error(err))
		}
	}
	if err := table.Render(); err != nil {
		log.Logger().Error("failed to render table", zap.Error(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "bench.toml", "Path to configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "use debug log mode")
	log.AddFlags(rootCmd.PersistentFlags())
	evaluateCmd.Flags().StringSlice("recommender", nil, "Recommenders to evaluate (default all)")
	recommendCmd.Flags().String("recommender", "", "Name of the recommender")
	recommendCmd.Flags().String("user", "", "Identifier of the user")
	recommendCmd.Flags().IntP("n", "n", 10, "Number of recommendations")
	_ = recommendCmd.MarkFlagRequired("recommender")
	_ = recommendCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(evaluateCmd, recommendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Logger().Fatal("failed to execute command", zap.Error(err))
	}
}
