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

package config

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/gorse-io/cfkit/model"
	"github.com/gorse-io/cfkit/model/cf"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "CFKIT"
	TypeHybrid = "hybrid"
)

// Config is the configuration of a benchmark.
type Config struct {
	Data         DataConfig          `mapstructure:"data"`
	Evaluation   EvaluationConfig    `mapstructure:"evaluation"`
	Recommenders []RecommenderConfig `mapstructure:"recommenders" validate:"required,min=1,dive"`
}

type DataConfig struct {
	TrainPath string `mapstructure:"train_path" validate:"required"`
	TestPath  string `mapstructure:"test_path" validate:"required"`
	Separator string `mapstructure:"separator"`
}

type EvaluationConfig struct {
	TopK         int  `mapstructure:"top_k" validate:"gt=0"`
	Jobs         int  `mapstructure:"jobs" validate:"gt=0"`
	Verbose      int  `mapstructure:"verbose" validate:"gt=0"`
	SkipUnscored bool `mapstructure:"skip_unscored"`
}

// RecommenderConfig configures a named recommender. Hybrid recommenders combine
// recommenders declared before them.
type RecommenderConfig struct {
	Name       string       `mapstructure:"name" validate:"required"`
	Type       string       `mapstructure:"type" validate:"oneof=item-knn user-knn als bpr slim-bpr popular hybrid"`
	Params     ParamsConfig `mapstructure:"params"`
	Components []string     `mapstructure:"components"`
	Weights    []float32    `mapstructure:"weights"`
	Normalize  bool         `mapstructure:"normalize"`
}

// ParamsConfig holds hyper-parameters. Unset fields keep model defaults.
type ParamsConfig struct {
	Lr                *float32 `mapstructure:"lr" validate:"omitempty,gt=0"`
	Reg               *float32 `mapstructure:"reg" validate:"omitempty,gte=0"`
	NEpochs           *int     `mapstructure:"n_epochs" validate:"omitempty,gt=0"`
	NFactors          *int     `mapstructure:"n_factors" validate:"omitempty,gt=0"`
	RandomState       *int64   `mapstructure:"random_state"`
	InitMean          *float32 `mapstructure:"init_mean"`
	InitStdDev        *float32 `mapstructure:"init_std" validate:"omitempty,gte=0"`
	Alpha             *float32 `mapstructure:"alpha" validate:"omitempty,gte=0"`
	UseBias           *bool    `mapstructure:"use_bias"`
	ColdUser          *string  `mapstructure:"cold_user" validate:"omitempty,oneof=bias fail"`
	Similarity        *string  `mapstructure:"similarity" validate:"omitempty,oneof=cosine asymmetric_cosine jaccard dice tversky pearson"`
	Shrink            *float32 `mapstructure:"shrink" validate:"omitempty,gte=0"`
	TopK              *int     `mapstructure:"top_k" validate:"omitempty,gt=0"`
	Normalize         *bool    `mapstructure:"normalize"`
	AsymmetricAlpha   *float32 `mapstructure:"asymmetric_alpha" validate:"omitempty,gte=0,lte=1"`
	TverskyAlpha      *float32 `mapstructure:"tversky_alpha" validate:"omitempty,gte=0"`
	TverskyBeta       *float32 `mapstructure:"tversky_beta" validate:"omitempty,gte=0"`
	LambdaI           *float32 `mapstructure:"lambda_i" validate:"omitempty,gte=0"`
	LambdaJ           *float32 `mapstructure:"lambda_j" validate:"omitempty,gte=0"`
	PositiveThreshold *float32 `mapstructure:"positive_threshold"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Evaluation: EvaluationConfig{
			TopK:         10,
			Jobs:         1,
			Verbose:      10,
			SkipUnscored: true,
		},
	}
}

func setDefault(v *viper.Viper) {
	defaultConfig := GetDefaultConfig()
	// [data]
	v.SetDefault("data.train_path", "")
	v.SetDefault("data.test_path", "")
	v.SetDefault("data.separator", "")
	// [evaluation]
	v.SetDefault("evaluation.top_k", defaultConfig.Evaluation.TopK)
	v.SetDefault("evaluation.jobs", defaultConfig.Evaluation.Jobs)
	v.SetDefault("evaluation.verbose", defaultConfig.Evaluation.Verbose)
	v.SetDefault("evaluation.skip_unscored", defaultConfig.Evaluation.SkipUnscored)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefault(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var conf Config
	// components may also be given as a comma separated string
	if err := v.Unmarshal(&conf, viper.DecodeHook(mapstructure.StringToSliceHookFunc(","))); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// LoadConfig loads configuration from a TOML, YAML or JSON file. Fields can be
// overridden by environment variables such as CFKIT_EVALUATION_TOP_K.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	// config.toml.template is read as TOML
	configType := strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(path, ".template")), ".")
	if configType == "" {
		configType = "toml"
	}
	v.SetConfigType(configType)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	return unmarshal(v)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterStructValidation(validateRecommenders, Config{})
	return validate
}

// validateRecommenders checks that names are unique and hybrids reference
// earlier recommenders with one weight each.
func validateRecommenders(sl validator.StructLevel) {
	conf := sl.Current().Interface().(Config)
	declared := make(map[string]struct{})
	for _, rec := range conf.Recommenders {
		if _, exist := declared[rec.Name]; exist {
			sl.ReportError(rec.Name, "Recommenders.Name", "Name", "unique", rec.Name)
		}
		if rec.Type == TypeHybrid {
			if len(rec.Components) < 2 {
				sl.ReportError(rec.Components, "Recommenders.Components", "Components", "min", "2")
			}
			if len(rec.Components) != len(rec.Weights) {
				sl.ReportError(rec.Weights, "Recommenders.Weights", "Weights", "len", rec.Name)
			}
			for _, component := range rec.Components {
				if _, exist := declared[component]; !exist {
					sl.ReportError(rec.Components, "Recommenders.Components", "Components", "declared", component)
				}
			}
		} else if len(rec.Components) > 0 {
			sl.ReportError(rec.Components, "Recommenders.Components", "Components", "excluded_unless", rec.Type)
		}
		declared[rec.Name] = struct{}{}
	}
}

// Validate checks the configuration.
func (config *Config) Validate() error {
	if err := validate.Struct(config); err != nil {
		return errors.Annotate(model.ErrInvalidConfiguration, err.Error())
	}
	return nil
}

// Get returns the configuration of a recommender by name.
func (config *Config) Get(name string) (*RecommenderConfig, bool) {
	rec, found := lo.Find(config.Recommenders, func(rec RecommenderConfig) bool {
		return rec.Name == name
	})
	if !found {
		return nil, false
	}
	return &rec, true
}

func (config *Config) GetFitConfig() *cf.FitConfig {
	return cf.NewFitConfig().
		SetJobs(config.Evaluation.Jobs).
		SetVerbose(config.Evaluation.Verbose)
}

func (config *Config) GetEvaluator() *cf.Evaluator {
	evaluator := cf.NewEvaluator(config.Evaluation.TopK).SetJobs(config.Evaluation.Jobs)
	evaluator.SkipUnscored = config.Evaluation.SkipUnscored
	return evaluator
}

// NewRecommender creates an unfitted recommender by name. Components of hybrid
// recommenders are created as new instances.
func (config *Config) NewRecommender(name string) (cf.Recommender, error) {
	rec, exist := config.Get(name)
	if !exist {
		return nil, errors.Annotatef(model.ErrInvalidConfiguration, "recommender %q not found", name)
	}
	if rec.Type != TypeHybrid {
		return cf.NewRecommender(rec.Type, rec.Params.ToParams())
	}
	components := make([]cf.Recommender, 0, len(rec.Components))
	for _, component := range rec.Components {
		if component == name {
			return nil, errors.Annotatef(model.ErrInvalidConfiguration, "recommender %q references itself", name)
		}
		r, err := config.NewRecommender(component)
		if err != nil {
			return nil, errors.Trace(err)
		}
		components = append(components, r)
	}
	hybrid, err := cf.NewHybrid(components, rec.Weights, rec.Normalize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return hybrid, nil
}

// ToParams converts set fields to hyper-parameters.
func (c *ParamsConfig) ToParams() model.Params {
	params := model.Params{}
	setParam(params, model.Lr, c.Lr)
	setParam(params, model.Reg, c.Reg)
	setParam(params, model.NEpochs, c.NEpochs)
	setParam(params, model.NFactors, c.NFactors)
	setParam(params, model.RandomState, c.RandomState)
	setParam(params, model.InitMean, c.InitMean)
	setParam(params, model.InitStdDev, c.InitStdDev)
	setParam(params, model.Alpha, c.Alpha)
	setParam(params, model.UseBias, c.UseBias)
	setParam(params, model.ColdUser, c.ColdUser)
	setParam(params, model.Similarity, c.Similarity)
	setParam(params, model.Shrink, c.Shrink)
	setParam(params, model.TopK, c.TopK)
	setParam(params, model.Normalize, c.Normalize)
	setParam(params, model.AsymmetricAlpha, c.AsymmetricAlpha)
	setParam(params, model.TverskyAlpha, c.TverskyAlpha)
	setParam(params, model.TverskyBeta, c.TverskyBeta)
	setParam(params, model.LambdaI, c.LambdaI)
	setParam(params, model.LambdaJ, c.LambdaJ)
	setParam(params, model.PositiveThreshold, c.PositiveThreshold)
	return params
}

func setParam[T any](params model.Params, name model.ParamName, value *T) {
	if value != nil {
		params[name] = *value
	}
}
