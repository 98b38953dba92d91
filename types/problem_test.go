package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatingUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Rating
		wantErr bool
	}{
		{name: "string", input: `{"rating": " 1500 "}`, want: "1500"},
		{name: "number", input: `{"rating": 1200}`, want: "1200"},
		{name: "null", input: `{"rating": null}`, want: ""},
		{name: "object", input: `{"rating": {"value": 1}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req struct {
				Rating Rating `json:"rating"`
			}
			err := json.Unmarshal([]byte(tt.input), &req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Rating)
		})
	}
}

func TestNormalizeProblemSerializesEmptyArrays(t *testing.T) {
	p := Problem{ValidationReport: &ValidationReport{TestCaseResults: []TestCaseResult{{CaseNumber: 1}}}}
	NormalizeProblem(&p)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{"topics", "examples", "constraints", "hints", "tags", "keyInsights", "testCases"} {
		assert.Equal(t, []any{}, raw[field], field)
	}
	assert.Equal(t, []string{}, p.ValidationReport.Strengths)
	assert.Equal(t, []string{}, p.ValidationReport.TestCaseResults[0].Issues)
}

func TestValidationStatus(t *testing.T) {
	assert.True(t, StatusRunning.IsValid())
	assert.False(t, ValidationStatus("queued").IsValid())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
}

func TestProblemUpdateApply(t *testing.T) {
	assert.True(t, ProblemUpdate{}.IsEmpty())

	status := StatusCompleted
	fav := true
	report := ValidationReport{OverallScore: 70}
	update := ProblemUpdate{ValidationStatus: &status, IsFavorited: &fav, ValidationReport: &report}

	p := Problem{ValidationStatus: StatusRunning, TestCases: []TestCase{{Input: "1"}}}
	update.Apply(&p)

	assert.Equal(t, StatusCompleted, p.ValidationStatus)
	assert.True(t, p.IsFavorited)
	require.NotNil(t, p.ValidationReport)
	assert.Equal(t, 70.0, p.ValidationReport.OverallScore)
	assert.Len(t, p.TestCases, 1)

	report.OverallScore = 10
	assert.Equal(t, 70.0, p.ValidationReport.OverallScore)
}

func TestParseTestcaseType(t *testing.T) {
	typ, ok := ParseTestcaseType(" Edge ")
	assert.True(t, ok)
	assert.Equal(t, TestcaseEdge, typ)
	assert.Equal(t, 1, typ.GroupOrder())

	_, ok = ParseTestcaseType("huge")
	assert.False(t, ok)
}
