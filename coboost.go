// Package coboost implements component-wise gradient boosting for tabular data.
//
// The model is an additive predictor f(x) = f0 + nu * sum_m s_m * b_m(x).  At each
// iteration one base-learner is selected from a registry of factories (one per
// feature or feature pair), fit to the current pseudo-residuals and added to the
// model after shrinkage.  Factories precompute their design matrices and the
// factorizations needed for fast refitting, so a single boosting step reduces to
// a handful of matrix-vector products.
package coboost

// Verbose controls amount of printing
var Verbose = true

// Browser is the browser to use for plotting.
var Browser = "firefox"
