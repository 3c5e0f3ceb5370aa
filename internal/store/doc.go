// Package store defines interfaces for persistence dependencies (the animal
// table and the sync-run audit log). Implementations live in other packages;
// this package must not import database drivers or concrete clients.
package store
