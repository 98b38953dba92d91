package types

import (
	"strings"
	"time"
)

// TestcaseSet is a generated collection of test cases for one problem and
// one owner. There is at most one set per (ProblemID, UserID); regenerating
// replaces it.
type TestcaseSet struct {
	// ID is the unique identifier of the set (a UUID string).
	ID string `json:"id" bson:"_id" db:"id"`

	// ProblemID references the problem the cases were generated for.
	ProblemID string `json:"problemId" bson:"problemId" db:"problem_id"`

	// UserID identifies the owner of the set.
	UserID string `json:"userId" bson:"userId" db:"user_id"`

	// Testcases is the ordered list of generated cases.
	Testcases []GeneratedTestcase `json:"testcases" bson:"testcases" db:"testcases"`

	// ArchiveKey is the object storage key of the tar.gz archive, when one
	// was uploaded.
	ArchiveKey string `json:"archiveKey,omitempty" bson:"archiveKey,omitempty" db:"archive_key"`

	// ArchiveSHA256 is the hex SHA-256 of the uploaded archive.
	ArchiveSHA256 string `json:"archiveSha256,omitempty" bson:"archiveSha256,omitempty" db:"archive_sha256"`

	// GeneratedAt is the time the cases were generated.
	GeneratedAt time.Time `json:"generatedAt" bson:"generatedAt" db:"generated_at"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

// GeneratedTestcase is a single generated input/output pair.
type GeneratedTestcase struct {
	Type   TestcaseType `json:"type" bson:"type"`
	Input  string       `json:"input" bson:"input"`
	Output string       `json:"output" bson:"output"`
}

// TestcaseType categorizes a generated test case.
type TestcaseType string

const (
	// TestcaseBase is a simple, straightforward case.
	TestcaseBase TestcaseType = "base"

	// TestcaseEdge exercises boundaries and corner cases.
	TestcaseEdge TestcaseType = "edge"

	// TestcaseLarge stresses the maximum constraints.
	TestcaseLarge TestcaseType = "large"
)

// ParseTestcaseType normalizes raw into a known type.
func ParseTestcaseType(raw string) (TestcaseType, bool) {
	switch t := TestcaseType(strings.ToLower(strings.TrimSpace(raw))); t {
	case TestcaseBase, TestcaseEdge, TestcaseLarge:
		return t, true
	}
	return "", false
}

// GroupOrder returns the archive group index of the type.
func (t TestcaseType) GroupOrder() int {
	switch t {
	case TestcaseBase:
		return 0
	case TestcaseEdge:
		return 1
	case TestcaseLarge:
		return 2
	default:
		return -1
	}
}
