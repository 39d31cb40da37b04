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

package dataset

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/gorse-io/cfkit/common/util"
	"github.com/juju/errors"
)

// Loader reads "user<sep>item[<sep>weight]" lines. Raw identifiers are mapped
// to dense indices through dictionaries shared by every file read with the
// same loader, so that train and test files agree on indices. Missing weights
// default to 1 and repeated pairs within one file are merged by summing.
type Loader struct {
	Sep      string
	UserDict *FreqDict
	ItemDict *FreqDict
}

// NewLoader creates a loader splitting fields by sep. An empty sep splits on
// whitespace.
func NewLoader(sep string) *Loader {
	return &Loader{
		Sep:      sep,
		UserDict: NewFreqDict(),
		ItemDict: NewFreqDict(),
	}
}

// Shape returns the number of users and items seen so far.
func (l *Loader) Shape() (int, int) {
	return int(l.UserDict.Count()), int(l.ItemDict.Count())
}

// Read parses triples from a reader. Empty lines and lines starting with '#'
// are skipped.
func (l *Loader) Read(r io.Reader) ([]Triple, error) {
	var (
		triples []Triple
		index   = make(map[[2]int32]int)
		lineNum int
	)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := util.SplitFields(line, l.Sep)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, errors.NotValidf("line %d %q", lineNum, line)
		}
		weight := float32(1)
		if len(fields) == 3 {
			w, err := util.ParseFloat[float32](fields[2])
			if err != nil {
				return nil, errors.Annotatef(err, "line %d", lineNum)
			}
			weight = w
		}
		userId := l.UserDict.Id(fields[0])
		itemId := l.ItemDict.Id(fields[1])
		key := [2]int32{userId, itemId}
		if k, exist := index[key]; exist {
			triples[k].Weight += weight
			continue
		}
		index[key] = len(triples)
		triples = append(triples, Triple{UserId: userId, ItemId: itemId, Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return triples, nil
}

// Load parses triples from a file.
func (l *Loader) Load(path string) ([]Triple, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	triples, err := l.Read(file)
	if err != nil {
		return nil, errors.Annotatef(err, "load %s", path)
	}
	return triples, nil
}
