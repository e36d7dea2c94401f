package exams

import "errors"

var (
	// ErrNotFound is returned by a Repository when the exam id does not resolve.
	ErrNotFound = errors.New("exam not found")

	// ErrAlreadyProcessed is returned by UpdateWithAnalysis when the conditional
	// update matched no unprocessed row.
	ErrAlreadyProcessed = errors.New("exam already processed")

	// ErrAnalysisFieldsImmutable rejects edits to an exam whose analysis is committed.
	ErrAnalysisFieldsImmutable = errors.New("exam analysis is immutable once processed")
)
