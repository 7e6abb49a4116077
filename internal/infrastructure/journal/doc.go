// Package journal records provisioning run outcomes in SQLite.
//
// Every pipeline run writes one run row plus one row per processed record,
// with the outcome (created, deleted, conflict, failed) and any error text.
// The journal is what operators consult for manual cleanup after a partial
// run: conflicted rows are the candidates for delete-then-recreate.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Error text may embed platform URLs; tokens are never journalled
//
// Usage:
//
//	j, err := journal.Open(cfg.Journal.Path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer j.Close()
package journal
