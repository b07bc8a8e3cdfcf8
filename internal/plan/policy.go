package plan

import "strings"

// Predicate reports whether a topic is acceptable.
type Predicate func(topic string) bool

// DomainPolicy restricts which topics may be planned. A topic passes when
// any predicate accepts it. The zero policy accepts everything.
type DomainPolicy []Predicate

// Allows reports whether topic passes the policy.
func (p DomainPolicy) Allows(topic string) bool {
	if len(p) == 0 {
		return true
	}
	for _, pred := range p {
		if pred(topic) {
			return true
		}
	}
	return false
}

// KeywordPolicy accepts topics containing any of the keywords, ignoring
// case.
func KeywordPolicy(keywords ...string) DomainPolicy {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	if len(lowered) == 0 {
		return nil
	}
	return DomainPolicy{func(topic string) bool {
		t := strings.ToLower(topic)
		for _, k := range lowered {
			if strings.Contains(t, k) {
				return true
			}
		}
		return false
	}}
}

// STEMKeywords is a ready-made allow list for mathematics, machine
// learning and computing topics.
var STEMKeywords = []string{
	"calculus", "derivative", "integral", "gradient", "optimization",
	"machine learning", "neural network", "deep learning", "backpropagation",
	"linear algebra", "matrix", "vector", "eigenvalue", "eigenvector",
	"statistics", "probability", "bayes", "distribution", "regression",
	"programming", "algorithm", "complexity", "recursion", "dynamic programming",
	"transformer", "attention", "embedding", "convolution", "lstm",
	"simulation", "monte carlo", "markov", "random walk",
	"differential equation", "fourier", "laplace",
	"loss function", "cost function", "activation function",
	"clustering", "classification", "dimensionality reduction",
	"overfitting", "regularization", "cross validation",
}
