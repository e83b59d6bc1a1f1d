package composer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors. Remote implementations wrap ErrNotFound and ErrNetwork so
// callers can branch with errors.Is.
var (
	ErrNotFound        = errors.New("composer: not found")
	ErrNetwork         = errors.New("composer: network error")
	ErrValidation      = errors.New("composer: validation failed")
	ErrInvalidMedia    = errors.New("composer: invalid media")
	ErrUploadFailed    = errors.New("composer: upload failed")
	ErrUploadCanceled  = errors.New("composer: upload canceled")
	ErrPartialSave     = errors.New("composer: partial save failure")
	ErrIndexOutOfRange = errors.New("composer: index out of range")
	ErrParentNotSaved  = errors.New("composer: parent not saved")
)

// ValidationError reports invalid fields keyed by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// EntityKind names the tree level an entity lives on.
type EntityKind string

const (
	KindExam     EntityKind = "exam"
	KindPart     EntityKind = "part"
	KindQuestion EntityKind = "question"
	KindMedia    EntityKind = "media"
)

// EntityRef locates an entity at the time an operation ran. Indices are -1
// when they do not apply.
type EntityRef struct {
	Kind          EntityKind
	ID            ID
	PartIndex     int
	QuestionIndex int
}

func (r EntityRef) String() string {
	switch {
	case r.QuestionIndex >= 0:
		return fmt.Sprintf("%s %s (part %d, question %d)", r.Kind, r.ID, r.PartIndex+1, r.QuestionIndex+1)
	case r.PartIndex >= 0:
		return fmt.Sprintf("%s %s (part %d)", r.Kind, r.ID, r.PartIndex+1)
	default:
		return fmt.Sprintf("%s %s", r.Kind, r.ID)
	}
}

// EntityFailure is one operation that did not succeed during Save.
type EntityFailure struct {
	Entity EntityRef
	Op     string
	Err    error
}

func (f EntityFailure) String() string {
	return fmt.Sprintf("%s %s: %v", f.Op, f.Entity, f.Err)
}

// PartialSaveError is returned by Save when some entities were stored and
// others were not. Entities that succeeded stay saved.
type PartialSaveError struct {
	Failures []EntityFailure
}

func (e *PartialSaveError) Error() string {
	lines := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		lines[i] = f.String()
	}
	return fmt.Sprintf("save incomplete, %d failed: %s", len(e.Failures), strings.Join(lines, "; "))
}

func (e *PartialSaveError) Is(target error) bool { return target == ErrPartialSave }
