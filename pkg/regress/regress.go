package regress

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Design stacks column vectors into a dense design matrix. All columns must
// share a length.
func Design(cols ...[]float64) *mat.Dense {
	if len(cols) == 0 || len(cols[0]) == 0 {
		return &mat.Dense{}
	}
	n := len(cols[0])
	x := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		x.SetCol(j, col)
	}
	return x
}

// Ones returns a column of n ones, the usual intercept term.
func Ones(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = 1
	}
	return c
}

// Ridge solves (XᵀX + alpha·I)β = Xᵀy.
func Ridge(x *mat.Dense, y []float64, alpha float64) ([]float64, error) {
	n, p := x.Dims()
	if n != len(y) {
		return nil, ErrDimMismatch
	}
	if n < p {
		return nil, ErrTooFewRows
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i < p; i++ {
		xtx.Set(i, i, xtx.At(i, i)+alpha)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, y))

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	out := make([]float64, p)
	for i := range out {
		out[i] = beta.AtVec(i)
	}
	return out, nil
}

// LeastSquares solves min ‖Xβ − y‖₂ via QR.
func LeastSquares(x *mat.Dense, y []float64) ([]float64, error) {
	n, p := x.Dims()
	if n != len(y) {
		return nil, ErrDimMismatch
	}
	if n < p {
		return nil, ErrTooFewRows
	}

	var qr mat.QR
	qr.Factorize(x)

	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, mat.NewDense(n, 1, y)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	out := make([]float64, p)
	for i := range out {
		out[i] = sol.At(i, 0)
	}
	return out, nil
}

// Predict returns Xβ.
func Predict(x *mat.Dense, beta []float64) []float64 {
	n, _ := x.Dims()
	var yhat mat.VecDense
	yhat.MulVec(x, mat.NewVecDense(len(beta), beta))
	out := make([]float64, n)
	for i := range out {
		out[i] = yhat.AtVec(i)
	}
	return out
}

// ClampNonNegative zeroes negative coefficients in place and returns beta.
// It is the projection step used wherever a physical parameter cannot be
// negative.
func ClampNonNegative(beta []float64) []float64 {
	for i, b := range beta {
		if b < 0 {
			beta[i] = 0
		}
	}
	return beta
}
