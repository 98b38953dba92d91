package types

import "time"

// Solution is a generated reference solution for a problem. It is returned
// to the caller and not persisted.
type Solution struct {
	ProblemID string `json:"problemId"`

	// AlgorithmExplanation describes the key insight and the algorithm.
	AlgorithmExplanation string `json:"algorithmExplanation"`

	// Codes holds one implementation per language.
	Codes []SolutionCode `json:"codes"`

	TimeComplexity  string   `json:"timeComplexity"`
	SpaceComplexity string   `json:"spaceComplexity"`
	KeyPoints       []string `json:"keyPoints"`
	EdgeCases       []string `json:"edgeCases"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// SolutionCode is one implementation of a Solution.
type SolutionCode struct {
	Language    string `json:"language"`
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
}
