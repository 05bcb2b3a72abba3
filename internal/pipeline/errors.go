package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema marks a missing column or a cell that cannot be parsed as its column type.
	ErrSchema = errors.New("schema violation")
	// ErrUnsorted is returned when visit indexing receives rows that are not date-ascending per patient.
	ErrUnsorted = errors.New("rows not sorted by date within patient")
	// ErrDuplicateVisit is returned when visit indexing sees two rows for one patient on one date.
	ErrDuplicateVisit = errors.New("more than one row for a patient on one date")
)

// SchemaError locates a schema violation. Row is -1 for table-level problems.
type SchemaError struct {
	Column string
	Row    int
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Row < 0 {
		return fmt.Sprintf("schema violation: column %s: %v", e.Column, e.Err)
	}
	return fmt.Sprintf("schema violation: column %s row %d: %v", e.Column, e.Row, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrSchema) match any *SchemaError.
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

func schemaErr(column string, row int, err error) error {
	return &SchemaError{Column: column, Row: row, Err: err}
}
