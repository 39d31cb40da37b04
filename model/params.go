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

package model

import (
	"reflect"
	"slices"

	"github.com/gorse-io/cfkit/common/log"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

/* ParamName */

// ParamName is the type of hyper-parameter names.
type ParamName string

// Predefined hyper-parameter names
const (
	Lr                ParamName = "Lr"                // learning rate
	Reg               ParamName = "Reg"               // regularization strength
	NEpochs           ParamName = "NEpochs"           // number of epochs
	NFactors          ParamName = "NFactors"          // number of factors
	RandomState       ParamName = "RandomState"       // random state (seed)
	InitMean          ParamName = "InitMean"          // mean of gaussian initial parameter
	InitStdDev        ParamName = "InitStdDev"        // standard deviation of gaussian initial parameter
	Alpha             ParamName = "Alpha"             // confidence scale of observed feedback in ALS
	UseBias           ParamName = "UseBias"           // learn user and item biases
	ColdUser          ParamName = "ColdUser"          // policy for users without training feedback
	Similarity        ParamName = "Similarity"        // similarity function of neighborhood models
	Shrink            ParamName = "Shrink"            // shrink term of similarity
	TopK              ParamName = "TopK"              // number of neighbors kept per row
	Normalize         ParamName = "Normalize"         // normalize neighborhood scores by similarity mass
	AsymmetricAlpha   ParamName = "AsymmetricAlpha"   // exponent of asymmetric cosine
	TverskyAlpha      ParamName = "TverskyAlpha"      // weight of A\B in tversky
	TverskyBeta       ParamName = "TverskyBeta"       // weight of B\A in tversky
	LambdaI           ParamName = "LambdaI"           // regularization of positive items in SLIM
	LambdaJ           ParamName = "LambdaJ"           // regularization of negative items in SLIM
	PositiveThreshold ParamName = "PositiveThreshold" // minimal weight of a positive interaction
)

type paramKind string

const (
	intParam    paramKind = "int"
	int64Param  paramKind = "int64"
	floatParam  paramKind = "float32"
	boolParam   paramKind = "bool"
	stringParam paramKind = "string"
)

var paramKinds = map[ParamName]paramKind{
	Lr:                floatParam,
	Reg:               floatParam,
	NEpochs:           intParam,
	NFactors:          intParam,
	RandomState:       int64Param,
	InitMean:          floatParam,
	InitStdDev:        floatParam,
	Alpha:             floatParam,
	UseBias:           boolParam,
	ColdUser:          stringParam,
	Similarity:        stringParam,
	Shrink:            floatParam,
	TopK:              intParam,
	Normalize:         boolParam,
	AsymmetricAlpha:   floatParam,
	TverskyAlpha:      floatParam,
	TverskyBeta:       floatParam,
	LambdaI:           floatParam,
	LambdaJ:           floatParam,
	PositiveThreshold: floatParam,
}

// accepts reports whether the getter of the kind converts val.
func (kind paramKind) accepts(val any) bool {
	switch val.(type) {
	case int:
		return kind == intParam || kind == int64Param || kind == floatParam
	case int32:
		return kind == intParam
	case int64:
		return kind == intParam || kind == int64Param
	case float32, float64:
		return kind == floatParam
	case bool:
		return kind == boolParam
	case string:
		return kind == stringParam
	default:
		return false
	}
}

// Params stores hyper-parameters for an model. It is a map between strings
// (names) and interface{}s (values). For example, hyper-parameters for ALS
// is given by:
//
//	model.Params{
//		model.NEpochs:  15,
//		model.NFactors: 16,
//		model.Reg:      0.06,
//	}
type Params map[ParamName]any

// Copy hyper-parameters.
func (parameters Params) Copy() Params {
	newParams := make(Params)
	for k, v := range parameters {
		newParams[k] = v
	}
	return newParams
}

// GetInt gets a integer parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetInt(name ParamName, _default int) int {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int:
			return val
		case int32:
			return int(val)
		case int64:
			return int(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetInt64 gets a int64 parameter by name. Returns _default if not exists or type doesn't match. The
// type will be converted if given int.
func (parameters Params) GetInt64(name ParamName, _default int64) int64 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case int64:
			return val
		case int:
			return int64(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "int64"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetBool gets a bool parameter by name. Returns _default if not exists or type doesn't match.
func (parameters Params) GetBool(name ParamName, _default bool) bool {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case bool:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "bool"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetFloat32 gets a float32 parameter by name. Returns _default if not exists or type doesn't match.
// Integers and float64 values are converted.
func (parameters Params) GetFloat32(name ParamName, _default float32) float32 {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case float32:
			return val
		case float64:
			return float32(val)
		case int:
			return float32(val)
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "float32"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// GetString gets a string parameter. Returns _default if not exists or type doesn't match.
func (parameters Params) GetString(name ParamName, _default string) string {
	if val, exist := parameters[name]; exist {
		switch val := val.(type) {
		case string:
			return val
		default:
			log.Logger().Error("type mismatch",
				zap.String("param", string(name)),
				zap.String("expect", "string"),
				zap.String("actual", reflect.TypeOf(val).String()))
		}
	}
	return _default
}

// Overwrite returns a copy of parameters updated by params.
func (parameters Params) Overwrite(params Params) Params {
	merged := parameters.Copy()
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// Validate returns model.ErrInvalidConfiguration if a predefined parameter
// holds a value its getter cannot convert. Getters fall back to defaults on
// such values, so models validate parameters before fitting.
func (parameters Params) Validate() error {
	names := lo.Keys(parameters)
	slices.Sort(names)
	for _, name := range names {
		kind, known := paramKinds[name]
		if !known {
			continue
		}
		if val := parameters[name]; !kind.accepts(val) {
			return errors.Annotatef(ErrInvalidConfiguration, "%s = %v (%T), expect %s", name, val, val, kind)
		}
	}
	return nil
}
