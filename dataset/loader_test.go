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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Read(t *testing.T) {
	loader := NewLoader(",")
	triples, err := loader.Read(strings.NewReader("# user,item,weight\nalice,apple,2\nbob,apple\n\nalice,pear,0.5\nalice,apple,1\n"))
	require.NoError(t, err)
	assert.Equal(t, []Triple{
		{UserId: 0, ItemId: 0, Weight: 3},
		{UserId: 1, ItemId: 0, Weight: 1},
		{UserId: 0, ItemId: 1, Weight: 0.5},
	}, triples)
	numUsers, numItems := loader.Shape()
	assert.Equal(t, 2, numUsers)
	assert.Equal(t, 2, numItems)
	// a second file shares the dictionaries
	triples, err = loader.Read(strings.NewReader("carol,apple\nbob,fig\n"))
	require.NoError(t, err)
	assert.Equal(t, []Triple{
		{UserId: 2, ItemId: 0, Weight: 1},
		{UserId: 1, ItemId: 2, Weight: 1},
	}, triples)
	numUsers, numItems = loader.Shape()
	assert.Equal(t, 3, numUsers)
	assert.Equal(t, 3, numItems)
	m, err := FromTriples(numUsers, numItems, triples)
	require.NoError(t, err)
	assert.Equal(t, 2, m.CountFeedback())
}

func TestLoader_Whitespace(t *testing.T) {
	triples, err := NewLoader("").Read(strings.NewReader("1 10\n2\t20\t3\n"))
	require.NoError(t, err)
	assert.Equal(t, []Triple{{0, 0, 1}, {1, 1, 3}}, triples)
}

func TestLoader_Errors(t *testing.T) {
	_, err := NewLoader(",").Read(strings.NewReader("1\n"))
	assert.ErrorIs(t, err, errors.NotValid)
	_, err = NewLoader(",").Read(strings.NewReader("1,2,x\n"))
	assert.Error(t, err)
	_, err = NewLoader(",").Load(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestLoader_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,1\n1,2\n2,1\n"), 0644))
	loader := NewLoader(",")
	triples, err := loader.Load(path)
	require.NoError(t, err)
	assert.Len(t, triples, 3)
	assert.Equal(t, 2, loader.UserDict.Freq(0))
}
