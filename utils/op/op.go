// Package op provides extended Gorgonia graph operations.
//
// Adapted from aunum/G.ld on GitHub
package op

import (
	G "gorgonia.org/gorgonia"
)

// MeanHuber adds the mean Huber loss between pred and target to the
// graph:
//
//	loss = 0.5 * (target - pred)^2                   if |target - pred| < delta
//	       delta * (|target - pred| - 0.5 * delta)   otherwise
//
// averaged over every element. The quadratic-near-zero, linear-far
// form keeps single outlier errors from dominating the gradient.
func MeanHuber(pred, target *G.Node, delta float64) (*G.Node, error) {
	deltaNode := G.NewScalar(
		pred.Graph(),
		G.Float64,
		G.WithValue(delta),
		G.WithName("huber_delta"),
	)

	diff, err := G.Sub(target, pred)
	if err != nil {
		return nil, err
	}
	abs, err := G.Abs(diff)
	if err != nil {
		return nil, err
	}

	// 0/1 masks selecting the quadratic and linear regimes
	quadMask, err := G.Lt(abs, deltaNode, true)
	if err != nil {
		return nil, err
	}
	linMask, err := G.Gte(abs, deltaNode, true)
	if err != nil {
		return nil, err
	}

	square, err := G.Square(diff)
	if err != nil {
		return nil, err
	}
	quad, err := G.Mul(G.NewConstant(0.5), square)
	if err != nil {
		return nil, err
	}

	linErr, err := G.Sub(abs, G.NewConstant(0.5*delta))
	if err != nil {
		return nil, err
	}
	lin, err := G.Mul(G.NewConstant(delta), linErr)
	if err != nil {
		return nil, err
	}

	quadPart, err := G.HadamardProd(quadMask, quad)
	if err != nil {
		return nil, err
	}
	linPart, err := G.HadamardProd(linMask, lin)
	if err != nil {
		return nil, err
	}

	loss, err := G.Add(quadPart, linPart)
	if err != nil {
		return nil, err
	}
	return G.Mean(loss)
}

// LogSumExp calculates the log of the summation of exponentials of
// all logits along the given axis.
//
// Use this in place of Gorgonia's LogSumExp, which has the final sum
// and log interchanged, which is incorrect.
func LogSumExp(logits *G.Node, along int) *G.Node {
	max := G.Must(G.Max(logits, along))

	exponent := G.Must(G.BroadcastSub(logits, max, nil, []byte{1}))
	exponent = G.Must(G.Exp(exponent))

	sum := G.Must(G.Sum(exponent, along))
	log := G.Must(G.Log(sum))

	return G.Must(G.Add(max, log))
}

// LogSoftMax returns the log of the softmax of logits along the given
// axis, computed through LogSumExp so that large logits cannot
// overflow the exponential.
func LogSoftMax(logits *G.Node, along int) *G.Node {
	lse := LogSumExp(logits, along)
	return G.Must(G.BroadcastSub(logits, lse, nil, []byte{1}))
}
