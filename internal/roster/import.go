// Package roster reads participant lists from CSV and writes winner history
// back out in the same spreadsheet-friendly format.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/google/logger"

	"prizedraw/internal/models"
)

var (
	idHeaders   = []string{"工号", "员工编号", "编号", "ID", "id", "员工号"}
	nameHeaders = []string{"姓名", "名字", "员工姓名", "Name", "name"}
)

var (
	ErrEmptyFile         = errors.New("roster file is empty")
	ErrTooFewColumns     = errors.New("roster needs at least two columns (employee id, name)")
	ErrBadHeader         = errors.New("unexpected header")
	ErrMissingEmployeeID = errors.New("employee id is empty")
	ErrMissingName       = errors.New("name is empty")
)

// DuplicateEmployeeIDError reports an employee id seen earlier in the same file.
type DuplicateEmployeeIDError struct {
	EmployeeID string
	FirstLine  int
}

func (e *DuplicateEmployeeIDError) Error() string {
	return fmt.Sprintf("employee id %q already appears on line %d", e.EmployeeID, e.FirstLine)
}

// RowError ties a problem to the line of the file it was found on.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ImportResult is what ParseCSV accepted and what it had to skip.
// Persons carry no ids; the store assigns them on import.
type ImportResult struct {
	Persons    []models.Person
	Errors     []error
	TotalCount int
	Success    bool
}

// Messages flattens Errors for JSON responses.
func (r ImportResult) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		out[i] = err.Error()
	}
	return out
}

// ParseCSV reads a two column roster: employee id, then name. The header row
// is checked against the known aliases but a mismatch is only reported.
// Blank rows are skipped, incomplete rows and repeated employee ids are
// reported and skipped. Success means at least one person and no errors.
func ParseCSV(r io.Reader) ImportResult {
	var res ImportResult

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		res.Errors = append(res.Errors, ErrEmptyFile)
		return res
	}
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("read roster header: %w", err))
		return res
	}
	if len(header) < 2 {
		res.Errors = append(res.Errors, ErrTooFewColumns)
		return res
	}
	// Excel prefixes UTF-8 exports with a BOM.
	first := strings.TrimSpace(strings.TrimPrefix(header[0], "\ufeff"))
	second := strings.TrimSpace(header[1])
	if !matchesAny(first, idHeaders) {
		res.Errors = append(res.Errors, fmt.Errorf("%w: first column should be 工号, got %q", ErrBadHeader, first))
	}
	if !matchesAny(second, nameHeaders) {
		res.Errors = append(res.Errors, fmt.Errorf("%w: second column should be 姓名, got %q", ErrBadHeader, second))
	}

	seen := make(map[string]int)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("read roster: %w", err))
			break
		}
		line, _ := reader.FieldPos(0)
		if len(record) < 2 {
			if len(record) == 1 && strings.TrimSpace(record[0]) != "" {
				res.Errors = append(res.Errors, &RowError{Line: line, Err: ErrMissingName})
			}
			continue
		}

		employeeID := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		switch {
		case employeeID == "" && name == "":
			continue
		case employeeID == "":
			res.Errors = append(res.Errors, &RowError{Line: line, Err: ErrMissingEmployeeID})
			continue
		case name == "":
			res.Errors = append(res.Errors, &RowError{Line: line, Err: ErrMissingName})
			continue
		}
		if firstLine, ok := seen[employeeID]; ok {
			res.Errors = append(res.Errors, &RowError{
				Line: line,
				Err:  &DuplicateEmployeeIDError{EmployeeID: employeeID, FirstLine: firstLine},
			})
			continue
		}
		seen[employeeID] = line

		res.Persons = append(res.Persons, models.Person{EmployeeID: employeeID, Name: name})
	}

	res.TotalCount = len(res.Persons)
	res.Success = len(res.Errors) == 0 && res.TotalCount > 0
	if len(res.Errors) > 0 {
		logger.Infof("roster: parsed %d persons with %d problems", res.TotalCount, len(res.Errors))
	}
	return res
}

func matchesAny(header string, aliases []string) bool {
	return slices.ContainsFunc(aliases, func(a string) bool {
		return strings.Contains(header, a)
	})
}
