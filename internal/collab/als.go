// Librarium - Book Recommendation and Reading Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/librarium

// Package collab implements the collaborative filtering engine: an
// implicit-feedback ALS factorization of the user/book interaction
// matrix, a persisted table of each user's most similar users, and a
// user-based cascade that recommends what similar users liked.
package collab

import (
	"context"
	"math"
	"sync"
)

// ALSConfig contains the factorization hyperparameters.
type ALSConfig struct {
	// Factors is the dimension of the latent factor vectors.
	Factors int

	// Iterations is the number of alternating optimization passes.
	Iterations int

	// Regularization is the L2 regularization parameter.
	Regularization float64

	// Alpha scales the confidence transformation for implicit feedback:
	// c = 1 + alpha * r.
	Alpha float64

	// NumWorkers is the number of parallel workers for factor updates.
	// If <= 0, defaults to 4.
	NumWorkers int
}

// Rating is one weighted user/book interaction.
type Rating struct {
	UserID    string
	BookTitle string
	Weight    float64
}

// ALS implements Alternating Least Squares for implicit feedback.
// Reference: "Collaborative Filtering for Implicit Feedback Datasets"
// (Hu, Koren, Volinsky, 2008).
//
// The objective minimizes
//
//	sum_{u,i} c_ui * (p_ui - x_u' * y_i)^2 + lambda * (||x_u||^2 + ||y_i||^2)
//
// where p_ui = 1 if user u interacted with book i and c_ui = 1 + alpha * r_ui.
type ALS struct {
	cfg ALSConfig

	mu sync.RWMutex

	// X is the user factor matrix, Y the book factor matrix.
	X [][]float64
	Y [][]float64

	userIndex   map[string]int
	itemIndex   map[string]int
	indexToUser []string
	indexToItem []string
}

// ALSState is the gob-serializable snapshot of a trained model.
type ALSState struct {
	UserFactors [][]float64
	ItemFactors [][]float64
	Users       []string
	Items       []string
}

// NewALS creates an untrained model.
func NewALS(cfg ALSConfig) *ALS {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 4
	}
	return &ALS{
		cfg:       cfg,
		userIndex: make(map[string]int),
		itemIndex: make(map[string]int),
	}
}

// Train fits the model. Weights of duplicate (user, book) pairs are
// summed before the confidence transform.
//
//nolint:gocyclo // ML training algorithms are inherently complex
func (a *ALS) Train(ctx context.Context, ratings []Rating) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	a.userIndex = make(map[string]int)
	a.itemIndex = make(map[string]int)
	a.indexToUser = nil
	a.indexToItem = nil

	for _, r := range ratings {
		if _, ok := a.userIndex[r.UserID]; !ok {
			a.userIndex[r.UserID] = len(a.indexToUser)
			a.indexToUser = append(a.indexToUser, r.UserID)
		}
		if _, ok := a.itemIndex[r.BookTitle]; !ok {
			a.itemIndex[r.BookTitle] = len(a.indexToItem)
			a.indexToItem = append(a.indexToItem, r.BookTitle)
		}
	}

	numUsers := len(a.indexToUser)
	numItems := len(a.indexToItem)
	numFactors := a.cfg.Factors

	if numUsers == 0 || numItems == 0 {
		a.X, a.Y = nil, nil
		return nil
	}

	// Sum duplicate weights, then build confidences c = 1 + alpha * r.
	weights := make(map[int]map[int]float64)
	for _, r := range ratings {
		ui := a.userIndex[r.UserID]
		ii := a.itemIndex[r.BookTitle]
		if weights[ui] == nil {
			weights[ui] = make(map[int]float64)
		}
		weights[ui][ii] += r.Weight
	}
	userItems := make(map[int]map[int]float64, len(weights))
	itemUsers := make(map[int]map[int]float64)
	for ui, itemMap := range weights {
		userItems[ui] = make(map[int]float64, len(itemMap))
		for ii, w := range itemMap {
			conf := 1.0 + a.cfg.Alpha*w
			userItems[ui][ii] = conf
			if itemUsers[ii] == nil {
				itemUsers[ii] = make(map[int]float64)
			}
			itemUsers[ii][ui] = conf
		}
	}

	// Small deterministic initialization.
	a.X = make([][]float64, numUsers)
	for u := range a.X {
		a.X[u] = make([]float64, numFactors)
		for f := range a.X[u] {
			a.X[u][f] = 0.1 * (float64((u*numFactors+f)%1000)/1000.0 - 0.5)
		}
	}
	a.Y = make([][]float64, numItems)
	for i := range a.Y {
		a.Y[i] = make([]float64, numFactors)
		for f := range a.Y[i] {
			a.Y[i][f] = 0.1 * (float64((i*numFactors+f)%1000)/1000.0 - 0.5)
		}
	}

	lambda := a.cfg.Regularization
	for iter := 0; iter < a.cfg.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.updateFactors(a.X, a.Y, userItems, numFactors, lambda)
		if err := ctx.Err(); err != nil {
			return err
		}
		a.updateFactors(a.Y, a.X, itemUsers, numFactors, lambda)
	}
	return nil
}

// updateFactors solves for every row of target with fixed other factors.
func (a *ALS) updateFactors(target, other [][]float64, links map[int]map[int]float64, numFactors int, lambda float64) {
	// Precompute other' * other once per half-iteration.
	gram := make([][]float64, numFactors)
	for f := range gram {
		gram[f] = make([]float64, numFactors)
	}
	for _, row := range other {
		for f1 := 0; f1 < numFactors; f1++ {
			for f2 := f1; f2 < numFactors; f2++ {
				gram[f1][f2] += row[f1] * row[f2]
				if f1 != f2 {
					gram[f2][f1] = gram[f1][f2]
				}
			}
		}
	}

	var wg sync.WaitGroup
	n := len(target)
	chunkSize := (n + a.cfg.NumWorkers - 1) / a.cfg.NumWorkers
	for w := 0; w < a.cfg.NumWorkers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for row := lo; row < hi; row++ {
				target[row] = solveRow(links[row], other, gram, numFactors, lambda)
			}
		}(start, end)
	}
	wg.Wait()
}

// solveRow solves A * x = b for one factor row, where
// A = other'*C*other + lambda*I and b = other'*C*p.
func solveRow(links map[int]float64, other, gram [][]float64, numFactors int, lambda float64) []float64 {
	A := make([][]float64, numFactors)
	for f := range A {
		A[f] = make([]float64, numFactors)
		copy(A[f], gram[f])
		A[f][f] += lambda
	}

	b := make([]float64, numFactors)
	for j, conf := range links {
		row := other[j]
		cMinus1 := conf - 1.0
		for f1 := 0; f1 < numFactors; f1++ {
			for f2 := f1; f2 < numFactors; f2++ {
				delta := cMinus1 * row[f1] * row[f2]
				A[f1][f2] += delta
				if f1 != f2 {
					A[f2][f1] += delta
				}
			}
			b[f1] += conf * row[f1]
		}
	}
	return solveLinearSystem(A, b)
}

// solveLinearSystem solves A*x = b using Cholesky decomposition.
//
//nolint:gocritic // A, L follow standard linear algebra notation
func solveLinearSystem(A [][]float64, b []float64) []float64 {
	n := len(b)

	L := make([][]float64, n)
	for i := range L {
		L[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := A[i][j]
			for k := 0; k < j; k++ {
				sum -= L[i][k] * L[j][k]
			}
			if i == j {
				if sum <= 0 {
					// Regularize when not positive definite.
					sum = 1e-10
				}
				L[i][j] = math.Sqrt(sum)
			} else if L[j][j] != 0 {
				L[i][j] = sum / L[j][j]
			}
		}
	}

	// Forward substitution L * z = b.
	z := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= L[i][j] * z[j]
		}
		if L[i][i] != 0 {
			z[i] = sum / L[i][i]
		}
	}

	// Back substitution L' * x = z.
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := z[i]
		for j := i + 1; j < n; j++ {
			sum -= L[j][i] * x[j]
		}
		if L[i][i] != 0 {
			x[i] = sum / L[i][i]
		}
	}
	return x
}

// HasUser reports whether the user was present in the training data.
func (a *ALS) HasUser(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.userIndex[userID]
	return ok
}

// Users returns the user IDs seen at training time, in matrix order.
func (a *ALS) Users() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.indexToUser))
	copy(out, a.indexToUser)
	return out
}

// Counts returns the number of users and books in the model.
func (a *ALS) Counts() (users, books int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.indexToUser), len(a.indexToItem)
}

// UserFactors returns the factor vector for a user.
func (a *ALS) UserFactors(userID string) ([]float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ui, ok := a.userIndex[userID]
	if !ok || ui >= len(a.X) {
		return nil, false
	}
	out := make([]float64, len(a.X[ui]))
	copy(out, a.X[ui])
	return out, true
}

// State returns a serializable snapshot of the trained model.
func (a *ALS) State() *ALSState {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := &ALSState{
		UserFactors: make([][]float64, len(a.X)),
		ItemFactors: make([][]float64, len(a.Y)),
		Users:       make([]string, len(a.indexToUser)),
		Items:       make([]string, len(a.indexToItem)),
	}
	copy(st.UserFactors, a.X)
	copy(st.ItemFactors, a.Y)
	copy(st.Users, a.indexToUser)
	copy(st.Items, a.indexToItem)
	return st
}

// FromState reconstructs a model from a snapshot.
func FromState(cfg ALSConfig, st *ALSState) *ALS {
	a := NewALS(cfg)
	a.X = st.UserFactors
	a.Y = st.ItemFactors
	a.indexToUser = st.Users
	a.indexToItem = st.Items
	for i, u := range st.Users {
		a.userIndex[u] = i
	}
	for i, it := range st.Items {
		a.itemIndex[it] = i
	}
	return a
}

// cosine computes cosine similarity between two factor vectors.
func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
