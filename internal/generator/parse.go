package generator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jjudge-oj/problemgen/types"
	"gopkg.in/yaml.v3"
)

var (
	leadingFence  = regexp.MustCompile("^```[a-zA-Z]*[ \t]*\n?")
	trailingFence = regexp.MustCompile("\n?```\\s*$")
)

// cleanResponse strips the formatting noise models wrap around a document:
// surrounding whitespace, a leading "---" marker and markdown fences.
func cleanResponse(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "---")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = leadingFence.ReplaceAllString(cleaned, "")
	cleaned = trailingFence.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimPrefix(cleaned, "---")
	return strings.TrimSpace(cleaned)
}

// decodeDocument parses a cleaned YAML or JSON document into its root
// mapping node.
func decodeDocument(text string) (*yaml.Node, error) {
	cleaned := cleanResponse(text)
	if cleaned == "" {
		return nil, parseError(CodeEmptyResponse, "empty document", nil)
	}

	if strings.HasPrefix(cleaned, "{") {
		// JSON strings cannot hold raw tabs, so any tab is indentation,
		// which YAML rejects.
		cleaned = strings.ReplaceAll(cleaned, "\t", "  ")
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, parseError(CodeInvalidOutput, "response is not valid YAML or JSON", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, parseError(CodeInvalidOutput, "response is not an object", nil)
	}
	return root, nil
}

// field returns the value node for key, or nil when absent.
func field(mapping *yaml.Node, keys ...string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for _, key := range keys {
		for i := 0; i+1 < len(mapping.Content); i += 2 {
			if mapping.Content[i].Value == key {
				return mapping.Content[i+1]
			}
		}
	}
	return nil
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null")
}

// scalarString returns the text of a scalar node, or "" for anything else.
func scalarString(node *yaml.Node) string {
	if isNull(node) || node.Kind != yaml.ScalarNode {
		return ""
	}
	return strings.TrimSpace(node.Value)
}

// stringList coerces node to a list of strings. Sequences keep their scalar
// items, and a missing or mistyped value yields an empty list. When
// splitScalar is set a plain string is split on newlines and commas.
func stringList(node *yaml.Node, splitScalar bool) []string {
	out := []string{}
	if isNull(node) {
		return out
	}

	switch node.Kind {
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if s := scalarString(item); s != "" {
				out = append(out, s)
			}
		}
	case yaml.ScalarNode:
		if !splitScalar {
			return out
		}
		var nested []string
		if err := yaml.Unmarshal([]byte(node.Value), &nested); err == nil && len(nested) > 0 {
			for _, s := range nested {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
		for _, part := range strings.FieldsFunc(node.Value, func(r rune) bool { return r == '\n' || r == ',' }) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// strictBool accepts only a plain YAML/JSON boolean.
func strictBool(node *yaml.Node) (bool, error) {
	if node == nil || node.Kind != yaml.ScalarNode || node.ShortTag() != "!!bool" {
		return false, fmt.Errorf("expected a boolean, got %s", describe(node))
	}
	var v bool
	if err := node.Decode(&v); err != nil {
		return false, err
	}
	return v, nil
}

func strictNumber(node *yaml.Node) (float64, error) {
	if node == nil || node.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("expected a number, got %s", describe(node))
	}
	switch node.ShortTag() {
	case "!!int", "!!float":
	default:
		return 0, fmt.Errorf("expected a number, got %s", describe(node))
	}
	var v float64
	if err := node.Decode(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func strictInt(node *yaml.Node) (int, error) {
	if node == nil || node.Kind != yaml.ScalarNode || node.ShortTag() != "!!int" {
		return 0, fmt.Errorf("expected an integer, got %s", describe(node))
	}
	var v int
	if err := node.Decode(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func describe(node *yaml.Node) string {
	if node == nil {
		return "nothing"
	}
	if node.Kind == yaml.ScalarNode {
		return fmt.Sprintf("%s %q", node.ShortTag(), node.Value)
	}
	switch node.Kind {
	case yaml.MappingNode:
		return "an object"
	case yaml.SequenceNode:
		return "a list"
	default:
		return "an unsupported value"
	}
}

// parseProblem extracts ProblemContent from a model answer.
func parseProblem(text string, rating string) (ProblemContent, error) {
	root, err := decodeDocument(text)
	if err != nil {
		return ProblemContent{}, err
	}

	content := ProblemContent{
		Title:           scalarString(field(root, "title")),
		Description:     scalarString(field(root, "description")),
		Constraints:     stringList(field(root, "constraints"), true),
		Hints:           stringList(field(root, "hints"), false),
		Tags:            stringList(field(root, "tags"), false),
		KeyInsights:     stringList(field(root, "keyInsights", "key_insights"), false),
		Difficulty:      scalarString(field(root, "difficulty")),
		TimeComplexity:  scalarString(field(root, "timeComplexity", "time_complexity")),
		SpaceComplexity: scalarString(field(root, "spaceComplexity", "space_complexity")),
		Approach:        scalarString(field(root, "approach")),
		Examples:        []types.Example{},
	}
	if content.Title == "" || content.Description == "" {
		return ProblemContent{}, parseError(CodeMissingField, "generated problem is missing title or description", nil)
	}
	if content.Difficulty == "" {
		content.Difficulty = rating
	}

	if examples := field(root, "examples"); examples != nil && examples.Kind == yaml.SequenceNode {
		for _, item := range examples.Content {
			if item.Kind != yaml.MappingNode {
				continue
			}
			example := types.Example{
				Input:       scalarString(field(item, "input")),
				Output:      scalarString(field(item, "output")),
				Explanation: scalarString(field(item, "explanation")),
			}
			if example.Input == "" && example.Output == "" {
				continue
			}
			content.Examples = append(content.Examples, example)
		}
	}

	return content, nil
}

// parseTestcases extracts generated cases. Entries missing a field or
// carrying an unknown type are skipped.
func parseTestcases(text string) ([]types.GeneratedTestcase, error) {
	root, err := decodeDocument(text)
	if err != nil {
		return nil, err
	}

	list := field(root, "testcases", "testCases")
	if list == nil || list.Kind != yaml.SequenceNode {
		return nil, parseError(CodeMissingField, "response has no testcases list", nil)
	}

	cases := make([]types.GeneratedTestcase, 0, len(list.Content))
	for _, item := range list.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		caseType, ok := types.ParseTestcaseType(scalarString(field(item, "type")))
		if !ok {
			continue
		}
		input := scalarString(field(item, "input"))
		output := scalarString(field(item, "output"))
		if input == "" || output == "" {
			continue
		}
		cases = append(cases, types.GeneratedTestcase{Type: caseType, Input: input, Output: output})
	}
	if len(cases) == 0 {
		return nil, parseError(CodeInvalidOutput, "no complete test cases were generated", nil)
	}
	return cases, nil
}

// parseValidation extracts a report over exactly n test cases. Verdicts must
// be real booleans and case numbers must cover 1..n once each.
func parseValidation(text string, n int) (types.ValidationReport, error) {
	root, err := decodeDocument(text)
	if err != nil {
		return types.ValidationReport{}, err
	}

	isValid, err := strictBool(field(root, "isValid", "is_valid"))
	if err != nil {
		return types.ValidationReport{}, parseError(CodeInvalidOutput, "isValid", err)
	}
	score, err := strictNumber(field(root, "overallScore", "overall_score"))
	if err != nil {
		return types.ValidationReport{}, parseError(CodeInvalidOutput, "overallScore", err)
	}
	if score < 0 || score > 100 {
		return types.ValidationReport{}, parseError(CodeInvalidOutput, fmt.Sprintf("overallScore %v is outside 0..100", score), nil)
	}

	report := types.ValidationReport{
		IsValid:         isValid,
		OverallScore:    score,
		Summary:         scalarString(field(root, "summary")),
		Strengths:       stringList(field(root, "strengths"), false),
		Weaknesses:      stringList(field(root, "weaknesses"), false),
		Recommendations: stringList(field(root, "recommendations"), false),
		TestCaseResults: []types.TestCaseResult{},
	}

	results := field(root, "testCaseResults", "test_case_results")
	if isNull(results) {
		results = &yaml.Node{Kind: yaml.SequenceNode}
	}
	if results.Kind != yaml.SequenceNode {
		return types.ValidationReport{}, parseError(CodeInvalidOutput, "testCaseResults is not a list", nil)
	}
	if len(results.Content) != n {
		return types.ValidationReport{}, parseError(CodeInvalidOutput,
			fmt.Sprintf("expected %d test case results, got %d", n, len(results.Content)), nil)
	}

	seen := make(map[int]bool, n)
	for i, item := range results.Content {
		if item.Kind != yaml.MappingNode {
			return types.ValidationReport{}, parseError(CodeInvalidOutput, fmt.Sprintf("test case result %d is not an object", i+1), nil)
		}

		number := i + 1
		if numNode := field(item, "caseNumber", "testCaseNumber", "case_number"); !isNull(numNode) {
			if number, err = strictInt(numNode); err != nil {
				return types.ValidationReport{}, parseError(CodeInvalidOutput, fmt.Sprintf("test case result %d caseNumber", i+1), err)
			}
		}
		if number < 1 || number > n || seen[number] {
			return types.ValidationReport{}, parseError(CodeInvalidOutput, fmt.Sprintf("caseNumber %d is out of range or repeated", number), nil)
		}
		seen[number] = true

		verdict, err := strictBool(field(item, "isValid", "is_valid"))
		if err != nil {
			return types.ValidationReport{}, parseError(CodeInvalidOutput, fmt.Sprintf("test case %d isValid", number), err)
		}

		report.TestCaseResults = append(report.TestCaseResults, types.TestCaseResult{
			CaseNumber:  number,
			IsValid:     verdict,
			Explanation: scalarString(field(item, "explanation")),
			Issues:      stringList(field(item, "issues"), false),
			Suggestions: stringList(field(item, "suggestions"), false),
		})
	}

	sort.Slice(report.TestCaseResults, func(i, j int) bool {
		return report.TestCaseResults[i].CaseNumber < report.TestCaseResults[j].CaseNumber
	})
	return report, nil
}

// minExplanationLength rejects placeholder explanations such as "TBD".
const minExplanationLength = 20

// parseSolution extracts a reference solution. Code entries without a
// language or code are skipped, and at least one must remain.
func parseSolution(text string, problem types.Problem) (types.Solution, error) {
	root, err := decodeDocument(text)
	if err != nil {
		return types.Solution{}, err
	}

	explanation := scalarString(field(root, "algorithmExplanation", "algorithm_explanation", "explanation"))
	if len([]rune(explanation)) < minExplanationLength {
		return types.Solution{}, parseError(CodeMissingField, "solution has no usable algorithm explanation", nil)
	}

	solution := types.Solution{
		AlgorithmExplanation: explanation,
		Codes:                []types.SolutionCode{},
		TimeComplexity:       scalarString(field(root, "timeComplexity", "time_complexity")),
		SpaceComplexity:      scalarString(field(root, "spaceComplexity", "space_complexity")),
		KeyPoints:            stringList(field(root, "keyPoints", "key_points"), false),
		EdgeCases:            stringList(field(root, "edgeCases", "edge_cases"), false),
	}
	if solution.TimeComplexity == "" {
		solution.TimeComplexity = firstNonEmpty(problem.TimeComplexity, "O(n)")
	}
	if solution.SpaceComplexity == "" {
		solution.SpaceComplexity = firstNonEmpty(problem.SpaceComplexity, "O(1)")
	}

	codes := field(root, "codes", "code", "solutions")
	if isNull(codes) {
		return types.Solution{}, parseError(CodeMissingField, "solution has no codes list", nil)
	}
	if codes.Kind == yaml.MappingNode {
		codes = &yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{codes}}
	}
	if codes.Kind != yaml.SequenceNode {
		return types.Solution{}, parseError(CodeInvalidOutput, fmt.Sprintf("codes is %s, not a list", describe(codes)), nil)
	}

	for _, item := range codes.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		language := strings.ToLower(scalarString(field(item, "language", "lang")))
		code := codeBlock(field(item, "code"))
		if language == "" || code == "" {
			continue
		}
		solution.Codes = append(solution.Codes, types.SolutionCode{
			Language:    language,
			Code:        code,
			Explanation: scalarString(field(item, "explanation")),
		})
	}
	if len(solution.Codes) == 0 {
		return types.Solution{}, parseError(CodeInvalidOutput, "no complete code implementations were generated", nil)
	}
	return solution, nil
}

// codeBlock keeps source indentation, trimming only surrounding blank lines.
func codeBlock(node *yaml.Node) string {
	if isNull(node) || node.Kind != yaml.ScalarNode {
		return ""
	}
	return strings.Trim(strings.TrimRight(node.Value, " \t\n"), "\n")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
