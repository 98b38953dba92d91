package generator

import (
	"testing"

	"github.com/jjudge-oj/problemgen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanResponse(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\": 1}\n```":    `{"a": 1}`,
		"```yaml\nkey: value\n```\n": "key: value",
		"---\nkey: value":            "key: value",
		"```\n---\nkey: value\n```":  "key: value",
		"  key: value  ":             "key: value",
	}
	for input, want := range cases {
		assert.Equal(t, want, cleanResponse(input), "input %q", input)
	}
}

func TestParseProblemCoercesLists(t *testing.T) {
	text := "```json\n" + `{
  "title": "Pair Sums",
  "description": "Count pairs.",
  "examples": [
    {"input": "3\n1 2 3", "output": "1", "explanation": "only 1+2"},
    "not an example"
  ],
  "constraints": "1 <= n <= 10^5\n1 <= a_i <= 10^9, a_i distinct",
  "hints": "not a list",
  "tags": ["math", "two pointers"],
  "timeComplexity": "O(n log n)"
}` + "\n```"

	content, err := parseProblem(text, "1200")
	require.NoError(t, err)

	assert.Equal(t, "Pair Sums", content.Title)
	assert.Equal(t, "1200", content.Difficulty)
	require.Len(t, content.Examples, 1)
	assert.Equal(t, "3\n1 2 3", content.Examples[0].Input)
	assert.Equal(t, []string{"1 <= n <= 10^5", "1 <= a_i <= 10^9", "a_i distinct"}, content.Constraints)
	assert.NotNil(t, content.Hints)
	assert.Empty(t, content.Hints)
	assert.NotNil(t, content.KeyInsights)
	assert.Equal(t, []string{"math", "two pointers"}, content.Tags)
}

func TestParseProblemConstraintsAsEncodedList(t *testing.T) {
	content, err := parseProblem(`{"title": "T", "description": "D", "constraints": "[\"n <= 5\", \"m <= 7\"]"}`, "800")
	require.NoError(t, err)
	assert.Equal(t, []string{"n <= 5", "m <= 7"}, content.Constraints)
}

func TestParseProblemRequiresTitleAndDescription(t *testing.T) {
	_, err := parseProblem(`{"title": "Only title"}`, "800")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)

	_, err = parseProblem("this is not a document: [", "800")
	assert.ErrorIs(t, err, ErrParse)

	_, err = parseProblem("- a\n- b", "800")
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseTestcasesSkipsIncompleteEntries(t *testing.T) {
	text := `---
testcases:
  - type: base
    input: |
      1 2
    output: |
      3
  - type: Edge
    input: "0 0"
    output: "0"
  - type: huge
    input: "1"
    output: "1"
  - type: large
    input: "5"
`
	cases, err := parseTestcases(text)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, types.GeneratedTestcase{Type: types.TestcaseBase, Input: "1 2", Output: "3"}, cases[0])
	assert.Equal(t, types.TestcaseEdge, cases[1].Type)
}

func TestParseTestcasesWithoutValidEntries(t *testing.T) {
	_, err := parseTestcases("testcases:\n  - type: base\n    input: \"1\"\n")
	assert.ErrorIs(t, err, ErrParse)

	_, err = parseTestcases("cases: []")
	assert.ErrorIs(t, err, ErrParse)
}

const validReport = `isValid: true
overallScore: 85
summary: solid set
strengths:
  - covers basics
weaknesses: none
testCaseResults:
  - caseNumber: 2
    isValid: false
    explanation: wrong output
    issues:
      - expected 4
  - testCaseNumber: 1
    isValid: true
    explanation: ok
`

func TestParseValidationSortsAndCoerces(t *testing.T) {
	report, err := parseValidation(validReport, 2)
	require.NoError(t, err)

	assert.True(t, report.IsValid)
	assert.Equal(t, 85.0, report.OverallScore)
	assert.Equal(t, []string{"covers basics"}, report.Strengths)
	assert.Equal(t, []string{}, report.Weaknesses)
	assert.Equal(t, []string{}, report.Recommendations)
	require.Len(t, report.TestCaseResults, 2)
	assert.Equal(t, 1, report.TestCaseResults[0].CaseNumber)
	assert.True(t, report.TestCaseResults[0].IsValid)
	assert.Equal(t, []string{}, report.TestCaseResults[0].Issues)
	assert.Equal(t, 2, report.TestCaseResults[1].CaseNumber)
	assert.False(t, report.TestCaseResults[1].IsValid)
	assert.Equal(t, []string{"expected 4"}, report.TestCaseResults[1].Issues)
}

func TestParseValidationAcceptsJSON(t *testing.T) {
	text := "```json\n{\n\t\"isValid\": false,\n\t\"overallScore\": 40.5,\n\t\"summary\": \"s\",\n\t\"testCaseResults\": [{\"caseNumber\": 1, \"isValid\": false}]\n}\n```"
	report, err := parseValidation(text, 1)
	require.NoError(t, err)
	assert.False(t, report.IsValid)
	assert.Equal(t, 40.5, report.OverallScore)
}

func TestParseValidationRejectsNonBooleanVerdicts(t *testing.T) {
	for name, verdict := range map[string]string{
		"quoted":  `"true"`,
		"yes":     `yes`,
		"number":  `1`,
		"missing": ``,
	} {
		t.Run(name, func(t *testing.T) {
			text := "isValid: true\noverallScore: 90\ntestCaseResults:\n  - caseNumber: 1\n    isValid: " + verdict + "\n"
			_, err := parseValidation(text, 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}

	_, err := parseValidation("isValid: \"false\"\noverallScore: 90\ntestCaseResults: []\n", 0)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseValidationCaseNumbering(t *testing.T) {
	cases := map[string]string{
		"count mismatch": "isValid: true\noverallScore: 90\ntestCaseResults:\n  - {caseNumber: 1, isValid: true}\n",
		"duplicate":      "isValid: true\noverallScore: 90\ntestCaseResults:\n  - {caseNumber: 1, isValid: true}\n  - {caseNumber: 1, isValid: true}\n",
		"out of range":   "isValid: true\noverallScore: 90\ntestCaseResults:\n  - {caseNumber: 1, isValid: true}\n  - {caseNumber: 3, isValid: true}\n",
		"zero":           "isValid: true\noverallScore: 90\ntestCaseResults:\n  - {caseNumber: 0, isValid: true}\n  - {caseNumber: 1, isValid: true}\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseValidation(text, 2)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseValidationScoreRange(t *testing.T) {
	_, err := parseValidation("isValid: true\noverallScore: 120\ntestCaseResults: []\n", 0)
	assert.ErrorIs(t, err, ErrParse)

	_, err = parseValidation("isValid: true\noverallScore: \"85\"\ntestCaseResults: []\n", 0)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseSolutionSkipsIncompleteCodes(t *testing.T) {
	text := "```yaml\n" + `---
algorithmExplanation: |
  Sort the array, then sweep two pointers inward until they meet.
codes:
  - language: Python
    code: |
      def solve(a):
          return sorted(a)
  - language: cpp
    code: ""
  - code: |
      class Solution {}
  - "just a string"
keyPoints: "not a list"
edgeCases:
  - empty array
` + "```"

	solution, err := parseSolution(text, types.Problem{TimeComplexity: "O(n log n)"})
	require.NoError(t, err)

	require.Len(t, solution.Codes, 1)
	assert.Equal(t, "python", solution.Codes[0].Language)
	assert.Equal(t, "def solve(a):\n    return sorted(a)", solution.Codes[0].Code)
	assert.Equal(t, "O(n log n)", solution.TimeComplexity)
	assert.Equal(t, "O(1)", solution.SpaceComplexity)
	assert.NotNil(t, solution.KeyPoints)
	assert.Empty(t, solution.KeyPoints)
	assert.Equal(t, []string{"empty array"}, solution.EdgeCases)
}

func TestParseSolutionSingleCodeObject(t *testing.T) {
	solution, err := parseSolution(`{
  "algorithmExplanation": "Use a hash map of seen values to find the complement.",
  "codes": {"language": "java", "code": "class Main {}"},
  "timeComplexity": "O(n)",
  "spaceComplexity": "O(n)"
}`, types.Problem{})
	require.NoError(t, err)
	require.Len(t, solution.Codes, 1)
	assert.Equal(t, "java", solution.Codes[0].Language)
	assert.Equal(t, "O(n)", solution.SpaceComplexity)
}

func TestParseSolutionRejectsUnusableOutput(t *testing.T) {
	explanation := "algorithmExplanation: Use a hash map of seen values to find the complement.\n"

	_, err := parseSolution(explanation, types.Problem{})
	assert.ErrorIs(t, err, ErrParse, "missing codes")

	_, err = parseSolution(explanation+"codes:\n  - language: python\n  - code: print(1)\n", types.Problem{})
	require.ErrorIs(t, err, ErrParse, "no complete entry")
	var genErr *Error
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, CodeInvalidOutput, genErr.Code)

	_, err = parseSolution(explanation+"codes: 42\n", types.Problem{})
	assert.ErrorIs(t, err, ErrParse, "codes is a scalar")

	_, err = parseSolution("algorithmExplanation: short\ncodes:\n  - language: python\n    code: print(1)\n", types.Problem{})
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, CodeMissingField, genErr.Code)
}
