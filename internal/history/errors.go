package history

import (
	"errors"
	"fmt"
)

var (
	ErrScanInProgress   = errors.New("history: a scan is already running")
	ErrNotFound         = errors.New("history: record not found")
	ErrNotEnoughEnabled = errors.New("history: fewer than two records enabled")
	ErrUnorderedSeries  = errors.New("history: result positions not strictly ascending")
)

// OracleError is one failed evaluation. The run it belongs to produced no record.
type OracleError struct {
	Label string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// SplitErrors returns the individual errors joined into err by RunScan, or
// err alone when it is not a join.
func SplitErrors(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
