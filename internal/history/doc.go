// Package history persists delivered check results in SQLite.
//
// The Store owns the database file; the Recorder subscribes to the event bus
// and hands every CheckFinished to a background writer so bus publishers are
// never blocked on disk I/O.
package history
