package store

import "strings"

// isConflict reports whether err is a SQLite concurrency failure,
// either SQLITE_BUSY or "database is locked". Both clear up once the
// competing writer finishes, so they are worth retrying.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
