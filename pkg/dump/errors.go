package dump

import "fmt"

// CatalogError indicates that enumerating the schema catalog failed. Nothing
// beyond the transaction-begin marker has been written when it is returned.
type CatalogError struct {
	Err error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("dump: reading catalog: %v", e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// RowError indicates that streaming rows out of a table failed partway.
// Output already written to the sink is not rolled back; the caller owns the
// sink and must discard it.
type RowError struct {
	Table string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("dump: reading rows from %s: %v", e.Table, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// WriteError indicates the output sink rejected a write.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("dump: writing to sink: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
