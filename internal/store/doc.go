// Package store declares interfaces for persistence dependencies (pull job
// records and fetched messages). Implementations live in other packages; this
// package must not import database drivers or concrete clients.
package store
