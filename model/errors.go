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

import "github.com/juju/errors"

// Error kinds shared by datasets, recommenders and evaluators. Use errors.Is
// to test the kind of an annotated error.
const (
	ErrInvalidConfiguration = errors.ConstError("invalid configuration")
	ErrEmptyDataset         = errors.ConstError("empty dataset")
	ErrNoEvaluableUsers     = errors.ConstError("no evaluable users")
	ErrNotFitted            = errors.ConstError("model not fitted")
	ErrColdUser             = errors.ConstError("cold user")
	ErrDimensionMismatch    = errors.ConstError("dimension mismatch")
	ErrIndexOutOfRange      = errors.ConstError("index out of range")
	ErrDuplicateInteraction = errors.ConstError("duplicate interaction")
)
