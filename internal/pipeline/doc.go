// Package pipeline drives the provisioning of descriptor files.
//
// This package manages:
//   - Enumerating descriptor files (.csv, .yml, .yaml) from path arguments
//   - Streaming CSV rows and YAML documents into provisioning records
//   - Dispatching each record to the API that owns it
//   - Journalling per-record outcomes and building the run summary
//
// # Architecture
//
// A run is one pass over a set of descriptor files. Every record is
// dispatched independently: a conflicted or failed provisioning call
// never blocks the records after it unless fail-fast is enabled. Parse
// and classification failures are different: they mark a descriptor as
// defective and abandon the rest of that file (later files still run).
// The summary counts every record exactly once as created/deleted,
// conflicted, or failed.
//
//	descriptor files → records → fiware.Client → journal + Report
//
// Creation order within a file is source order, so service groups listed
// before their devices are provisioned first. There are no cross-record
// ordering guarantees beyond that.
package pipeline
