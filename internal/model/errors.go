package model

import "fmt"

// SourceReadError means the external reader failed. Fatal to the invocation.
type SourceReadError struct {
	Source string
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("source read %s: %v", e.Source, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// TypeCoercionError means one value could not be cast to its canonical type.
// Per-record: the record is marked malformed and quarantined, never fatal.
type TypeCoercionError struct {
	Column string
	Value  any
	Want   string
}

func (e *TypeCoercionError) Error() string {
	return fmt.Sprintf("cannot cast %q value %v to %s", e.Column, e.Value, e.Want)
}

// StructuralSchemaError means the canonical schema configuration itself is
// inconsistent. Fatal before any record is read.
type StructuralSchemaError struct {
	Department Department
	Reason     string
}

func (e *StructuralSchemaError) Error() string {
	return fmt.Sprintf("schema for %s: %s", e.Department, e.Reason)
}

// PipelineError is the single coarse-grained error the facade re-raises after
// recording a failed run in the ledger.
type PipelineError struct {
	RunID string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline run %s: %v", e.RunID, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
