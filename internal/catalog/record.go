// Package catalog defines the syllabus records carried in a snapshot file and
// the result shape returned to callers.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/syllabus-search/offline-index/pkg/errors"
)

// Schedule is the weekly slot of a course.
type Schedule struct {
	Day     string `json:"day"`
	Periods []int  `json:"periods"`
}

// RawRecord is one catalog item exactly as the snapshot delivers it.
type RawRecord struct {
	ID          string    `json:"id"`
	ClassName   string    `json:"class_name"`
	TeacherName string    `json:"teacher_name"`
	Category    string    `json:"category"`
	Grade       string    `json:"grade"`
	Campus      []string  `json:"campus"`
	Time        *Schedule `json:"time,omitempty"`
	Term        string    `json:"term"`
	Credit      *int      `json:"credit,omitempty"`
	EvalMethod  *string   `json:"eval_method,omitempty"`
}

// Decode parses a snapshot file. Any syntax or shape error is reported as
// ErrSnapshotMalformed.
func Decode(data []byte) ([]RawRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: snapshot is not a JSON array", apperrors.ErrSnapshotMalformed)
	}
	var records []RawRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrSnapshotMalformed, err)
	}
	return records, nil
}
