package pipeline

import "errors"

// Domain-specific errors for pipeline operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoDescriptors is returned when the path arguments yield no
	// descriptor files.
	ErrNoDescriptors = errors.New("pipeline: no descriptor files found")

	// ErrUnsupportedFormat is returned for a file argument whose extension
	// is not .csv, .yml or .yaml.
	ErrUnsupportedFormat = errors.New("pipeline: unsupported descriptor format")

	// ErrEmptyDescriptor is returned for a CSV file without a header row.
	ErrEmptyDescriptor = errors.New("pipeline: descriptor file is empty")

	// ErrUnknownGroup is returned when a YAML entity references a group
	// that no loaded descriptor defines.
	ErrUnknownGroup = errors.New("pipeline: unknown group reference")

	// ErrUnknownAttribute is returned when a YAML entity overrides an
	// attribute its group does not define.
	ErrUnknownAttribute = errors.New("pipeline: override of unknown attribute")

	// ErrRowsFailed is returned by Run when at least one record could not
	// be provisioned. The Report carries the per-record details.
	ErrRowsFailed = errors.New("pipeline: some records failed")

	// ErrAborted is returned by Run when fail-fast stopped the run before
	// all records were processed.
	ErrAborted = errors.New("pipeline: run aborted")
)
