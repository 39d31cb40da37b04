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
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/cfkit/model"
	"github.com/juju/errors"
)

// Triple is a single interaction between a user and an item.
type Triple struct {
	UserId int32
	ItemId int32
	Weight float32
}

// Matrix is an immutable sparse user-item interaction matrix. Interactions are
// stored twice: row-major (CSR, by user) and column-major (CSC, by item), each
// in contiguous index and weight arrays with indices sorted ascending.
type Matrix struct {
	numUsers    int
	numItems    int
	userIndptr  []int
	userIndices []int32
	userWeights []float32
	itemIndptr  []int
	itemIndices []int32
	itemWeights []float32
}

// NewMatrix creates a matrix of shape numUsers x numItems from parallel slices of
// user indices, item indices and weights.
func NewMatrix(numUsers, numItems int, users, items []int32, weights []float32) (*Matrix, error) {
	if numUsers < 0 || numItems < 0 {
		return nil, errors.Annotatef(model.ErrInvalidConfiguration, "negative shape (%d, %d)", numUsers, numItems)
	}
	if len(users) != len(items) || len(users) != len(weights) {
		return nil, errors.Annotatef(model.ErrDimensionMismatch,
			"%d users, %d items and %d weights", len(users), len(items), len(weights))
	}
	for k := range users {
		if users[k] < 0 || int(users[k]) >= numUsers {
			return nil, errors.Annotatef(model.ErrIndexOutOfRange, "user %d not in [0, %d)", users[k], numUsers)
		}
		if items[k] < 0 || int(items[k]) >= numItems {
			return nil, errors.Annotatef(model.ErrIndexOutOfRange, "item %d not in [0, %d)", items[k], numItems)
		}
		w := float64(weights[k])
		if !(w > 0) || math.IsInf(w, 0) {
			return nil, errors.NotValidf("weight %v of (%d, %d)", weights[k], users[k], items[k])
		}
	}
	m := &Matrix{numUsers: numUsers, numItems: numItems}
	// bucket interactions by item
	byItemIndptr := countIndptr(numItems, items)
	byItemUsers := make([]int32, len(users))
	byItemWeights := make([]float32, len(users))
	cursor := append([]int(nil), byItemIndptr[:numItems]...)
	for k := range items {
		pos := cursor[items[k]]
		byItemUsers[pos], byItemWeights[pos] = users[k], weights[k]
		cursor[items[k]]++
	}
	// scatter items in ascending order into user rows
	m.userIndptr = countIndptr(numUsers, users)
	m.userIndices = make([]int32, len(users))
	m.userWeights = make([]float32, len(users))
	cursor = append(cursor[:0], m.userIndptr[:numUsers]...)
	for i := 0; i < numItems; i++ {
		for pos := byItemIndptr[i]; pos < byItemIndptr[i+1]; pos++ {
			u := byItemUsers[pos]
			if cursor[u] > m.userIndptr[u] && m.userIndices[cursor[u]-1] == int32(i) {
				return nil, errors.Annotatef(model.ErrDuplicateInteraction, "(%d, %d)", u, i)
			}
			m.userIndices[cursor[u]], m.userWeights[cursor[u]] = int32(i), byItemWeights[pos]
			cursor[u]++
		}
	}
	// scatter users in ascending order into item columns
	m.itemIndptr = byItemIndptr
	m.itemIndices = byItemUsers
	m.itemWeights = byItemWeights
	cursor = append(cursor[:0], m.itemIndptr[:numItems]...)
	for u := 0; u < numUsers; u++ {
		for pos := m.userIndptr[u]; pos < m.userIndptr[u+1]; pos++ {
			i := m.userIndices[pos]
			m.itemIndices[cursor[i]], m.itemWeights[cursor[i]] = int32(u), m.userWeights[pos]
			cursor[i]++
		}
	}
	return m, nil
}

// FromTriples creates a matrix of shape numUsers x numItems from triples.
func FromTriples(numUsers, numItems int, triples []Triple) (*Matrix, error) {
	users := make([]int32, len(triples))
	items := make([]int32, len(triples))
	weights := make([]float32, len(triples))
	for k, t := range triples {
		users[k], items[k], weights[k] = t.UserId, t.ItemId, t.Weight
	}
	return NewMatrix(numUsers, numItems, users, items, weights)
}

func countIndptr(n int, indices []int32) []int {
	indptr := make([]int, n+1)
	for _, i := range indices {
		indptr[i+1]++
	}
	for i := 0; i < n; i++ {
		indptr[i+1] += indptr[i]
	}
	return indptr
}

// CountUsers returns the number of rows.
func (m *Matrix) CountUsers() int {
	return m.numUsers
}

// CountItems returns the number of columns.
func (m *Matrix) CountItems() int {
	return m.numItems
}

// CountFeedback returns the number of stored interactions.
func (m *Matrix) CountFeedback() int {
	return len(m.userIndices)
}

// UserFeedback returns the items and weights of a user, sorted by item. The
// returned slices share storage with the matrix and must not be modified.
func (m *Matrix) UserFeedback(userId int32) ([]int32, []float32) {
	if userId < 0 || int(userId) >= m.numUsers {
		return nil, nil
	}
	begin, end := m.userIndptr[userId], m.userIndptr[userId+1]
	return m.userIndices[begin:end], m.userWeights[begin:end]
}

// ItemFeedback returns the users and weights of an item, sorted by user. The
// returned slices share storage with the matrix and must not be modified.
func (m *Matrix) ItemFeedback(itemId int32) ([]int32, []float32) {
	if itemId < 0 || int(itemId) >= m.numItems {
		return nil, nil
	}
	begin, end := m.itemIndptr[itemId], m.itemIndptr[itemId+1]
	return m.itemIndices[begin:end], m.itemWeights[begin:end]
}

// CountUserFeedback returns the number of interactions of a user.
func (m *Matrix) CountUserFeedback(userId int32) int {
	items, _ := m.UserFeedback(userId)
	return len(items)
}

// UserSet returns the items of a user as a set.
func (m *Matrix) UserSet(userId int32) mapset.Set[int32] {
	items, _ := m.UserFeedback(userId)
	return mapset.NewThreadUnsafeSet(items...)
}

// Transpose returns the item-user view of the matrix. Storage is shared.
func (m *Matrix) Transpose() *Matrix {
	return &Matrix{
		numUsers:    m.numItems,
		numItems:    m.numUsers,
		userIndptr:  m.itemIndptr,
		userIndices: m.itemIndices,
		userWeights: m.itemWeights,
		itemIndptr:  m.userIndptr,
		itemIndices: m.userIndices,
		itemWeights: m.userWeights,
	}
}

// Threshold returns a binary copy of the matrix that keeps interactions with
// weight no less than minWeight.
func (m *Matrix) Threshold(minWeight float32) *Matrix {
	users := make([]int32, 0, m.CountFeedback())
	items := make([]int32, 0, m.CountFeedback())
	for u := 0; u < m.numUsers; u++ {
		for pos := m.userIndptr[u]; pos < m.userIndptr[u+1]; pos++ {
			if m.userWeights[pos] >= minWeight {
				users = append(users, int32(u))
				items = append(items, m.userIndices[pos])
			}
		}
	}
	weights := make([]float32, len(users))
	for k := range weights {
		weights[k] = 1
	}
	binary, err := NewMatrix(m.numUsers, m.numItems, users, items, weights)
	if err != nil {
		// the source matrix already satisfies every invariant
		panic(err)
	}
	return binary
}

// ItemPopularity returns the sum of interaction weights of every item.
func (m *Matrix) ItemPopularity() []float32 {
	popularity := make([]float32, m.numItems)
	for i := 0; i < m.numItems; i++ {
		for pos := m.itemIndptr[i]; pos < m.itemIndptr[i+1]; pos++ {
			popularity[i] += m.itemWeights[pos]
		}
	}
	return popularity
}

// Users returns users with at least one interaction.
func (m *Matrix) Users() []int32 {
	users := make([]int32, 0, m.numUsers)
	for u := 0; u < m.numUsers; u++ {
		if m.userIndptr[u+1] > m.userIndptr[u] {
			users = append(users, int32(u))
		}
	}
	return users
}

// RelevanceSets returns the held-out relevant items of every user in a test matrix.
func RelevanceSets(test *Matrix) map[int32]mapset.Set[int32] {
	return userSets(test)
}

// ExclusionSets returns the already seen items of every user in a train matrix.
func ExclusionSets(train *Matrix) map[int32]mapset.Set[int32] {
	return userSets(train)
}

func userSets(m *Matrix) map[int32]mapset.Set[int32] {
	sets := make(map[int32]mapset.Set[int32])
	for _, u := range m.Users() {
		sets[u] = m.UserSet(u)
	}
	return sets
}
