package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Problem represents an AI-generated competitive programming problem owned
// by a single user. It carries the generation request, the generated
// content, and the state of the background validation pipeline.
type Problem struct {
	// ID is the unique identifier of the problem (a UUID string).
	ID string `json:"id" bson:"_id" db:"id"`

	// UserID identifies the owner of the problem. Every read and write is
	// scoped to this value.
	UserID string `json:"userId" bson:"userId" db:"user_id"`

	// Topics are the subject areas requested for the problem.
	Topics []string `json:"topics" bson:"topics" db:"topics"`

	// Rating is the requested difficulty on the Codeforces scale (800 to 3500).
	Rating Rating `json:"rating" bson:"rating" db:"rating"`

	// Suggestion is optional free text passed to the generator.
	Suggestion string `json:"suggestion" bson:"suggestion" db:"suggestion"`

	// Title is the human-readable name of the problem.
	Title string `json:"title" bson:"title" db:"title"`

	// Description contains the full problem statement.
	Description string `json:"description" bson:"description" db:"description"`

	// Examples are the illustrative input/output pairs shown with the statement.
	Examples []Example `json:"examples" bson:"examples" db:"examples"`

	// Constraints are the input bounds, one per entry.
	Constraints []string `json:"constraints" bson:"constraints" db:"constraints"`

	// Hints are progressive nudges toward the solution.
	Hints []string `json:"hints" bson:"hints" db:"hints"`

	// Tags are free-form labels produced by the generator.
	Tags []string `json:"tags" bson:"tags" db:"tags"`

	// Difficulty is the generator's difficulty label. It defaults to the
	// requested rating.
	Difficulty string `json:"difficulty" bson:"difficulty" db:"difficulty"`

	// TimeComplexity is the expected time complexity of an optimal solution.
	TimeComplexity string `json:"timeComplexity" bson:"timeComplexity" db:"time_complexity"`

	// SpaceComplexity is the expected space complexity of an optimal solution.
	SpaceComplexity string `json:"spaceComplexity" bson:"spaceComplexity" db:"space_complexity"`

	// Approach briefly describes how to solve the problem.
	Approach string `json:"approach" bson:"approach" db:"approach"`

	// KeyInsights lists the observations the solution relies on.
	KeyInsights []string `json:"keyInsights" bson:"keyInsights" db:"key_insights"`

	// TestCases is populated by the enrichment pipeline and is empty when
	// the problem is first returned to the client.
	TestCases []TestCase `json:"testCases" bson:"testCases" db:"test_cases"`

	// ValidationStatus is the pipeline state of this problem.
	ValidationStatus ValidationStatus `json:"validationStatus" bson:"validationStatus" db:"validation_status"`

	// ValidationReport is set once the pipeline reaches a terminal state.
	ValidationReport *ValidationReport `json:"validationReport" bson:"validationReport,omitempty" db:"validation_report"`

	// IsFavorited is toggled by the owner and is independent of the pipeline.
	IsFavorited bool `json:"isFavorited" bson:"isFavorited" db:"is_favorited"`

	// GeneratedAt is the time the generator returned the problem content.
	GeneratedAt time.Time `json:"generatedAt" bson:"generatedAt" db:"generated_at"`

	// CreatedAt is the timestamp at which the problem was persisted.
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent write to the problem.
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

// Example is an illustrative input/output pair from the problem statement.
type Example struct {
	Input       string `json:"input" bson:"input" yaml:"input"`
	Output      string `json:"output" bson:"output" yaml:"output"`
	Explanation string `json:"explanation" bson:"explanation" yaml:"explanation"`
}

// TestCase is a case validated by the enrichment pipeline.
type TestCase struct {
	Input       string `json:"input" bson:"input"`
	Output      string `json:"output" bson:"output"`
	Explanation string `json:"explanation" bson:"explanation"`
}

// ValidationStatus is the state of a problem's enrichment pipeline.
type ValidationStatus string

const (
	// StatusPending is the zero state before the record is first persisted.
	StatusPending ValidationStatus = "pending"

	// StatusRunning means the asynchronous phase has been scheduled or is in progress.
	StatusRunning ValidationStatus = "running"

	// StatusCompleted means validation finished and a report is attached.
	StatusCompleted ValidationStatus = "completed"

	// StatusFailed means the pipeline stopped; the report summary explains why.
	StatusFailed ValidationStatus = "failed"
)

// IsValid reports whether s is a known status.
func (s ValidationStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition can occur.
func (s ValidationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ValidationReport is the verdict returned by the validation generator.
type ValidationReport struct {
	// IsValid is the overall verdict over all test cases.
	IsValid bool `json:"isValid" bson:"isValid"`

	// OverallScore is a 0 to 100 quality score.
	OverallScore float64 `json:"overallScore" bson:"overallScore"`

	// Summary is free text. For failed pipelines it explains the failure.
	Summary string `json:"summary" bson:"summary"`

	Strengths       []string `json:"strengths" bson:"strengths"`
	Weaknesses      []string `json:"weaknesses" bson:"weaknesses"`
	Recommendations []string `json:"recommendations" bson:"recommendations"`

	// TestCaseResults holds one entry per test case, ordered by CaseNumber.
	TestCaseResults []TestCaseResult `json:"testCaseResults" bson:"testCaseResults"`

	// ValidatedAt is the time the report was written.
	ValidatedAt time.Time `json:"validatedAt" bson:"validatedAt"`
}

// TestCaseResult is the verdict for a single test case.
type TestCaseResult struct {
	// CaseNumber is the 1-based index of the test case.
	CaseNumber  int      `json:"caseNumber" bson:"caseNumber"`
	IsValid     bool     `json:"isValid" bson:"isValid"`
	Explanation string   `json:"explanation" bson:"explanation"`
	Issues      []string `json:"issues" bson:"issues"`
	Suggestions []string `json:"suggestions" bson:"suggestions"`
}

// ProblemUpdate is a partial update. Nil fields are left untouched.
type ProblemUpdate struct {
	ValidationStatus *ValidationStatus
	TestCases        *[]TestCase
	ValidationReport *ValidationReport
	IsFavorited      *bool

	// ExpectStatus makes the update conditional: it applies only while the
	// stored status equals this value.
	ExpectStatus *ValidationStatus
}

// IsEmpty reports whether the update changes nothing.
func (u ProblemUpdate) IsEmpty() bool {
	return u.ValidationStatus == nil && u.TestCases == nil && u.ValidationReport == nil && u.IsFavorited == nil
}

// Apply copies the set fields of u onto p.
func (u ProblemUpdate) Apply(p *Problem) {
	if u.ValidationStatus != nil {
		p.ValidationStatus = *u.ValidationStatus
	}
	if u.TestCases != nil {
		p.TestCases = *u.TestCases
	}
	if u.ValidationReport != nil {
		report := *u.ValidationReport
		p.ValidationReport = &report
	}
	if u.IsFavorited != nil {
		p.IsFavorited = *u.IsFavorited
	}
}

// ProblemFilter narrows a list query beyond the owner.
type ProblemFilter struct {
	FavoritesOnly bool
	Status        ValidationStatus
}

// Rating is a difficulty value. Clients may send it as a JSON string or number.
type Rating string

func (r *Rating) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Rating(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("rating must be a string or number")
	}
	*r = Rating(n.String())
	return nil
}

// String returns the rating as stored.
func (r Rating) String() string {
	return string(r)
}

// NormalizeProblem replaces nil slices with empty ones so that every list
// field serializes as an array.
func NormalizeProblem(p *Problem) {
	if p.Topics == nil {
		p.Topics = []string{}
	}
	if p.Examples == nil {
		p.Examples = []Example{}
	}
	if p.Constraints == nil {
		p.Constraints = []string{}
	}
	if p.Hints == nil {
		p.Hints = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.KeyInsights == nil {
		p.KeyInsights = []string{}
	}
	if p.TestCases == nil {
		p.TestCases = []TestCase{}
	}
	if p.ValidationReport != nil {
		NormalizeReport(p.ValidationReport)
	}
}

// NormalizeReport replaces nil slices in a report with empty ones.
func NormalizeReport(r *ValidationReport) {
	if r.Strengths == nil {
		r.Strengths = []string{}
	}
	if r.Weaknesses == nil {
		r.Weaknesses = []string{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	if r.TestCaseResults == nil {
		r.TestCaseResults = []TestCaseResult{}
	}
	for i := range r.TestCaseResults {
		if r.TestCaseResults[i].Issues == nil {
			r.TestCaseResults[i].Issues = []string{}
		}
		if r.TestCaseResults[i].Suggestions == nil {
			r.TestCaseResults[i].Suggestions = []string{}
		}
	}
}
