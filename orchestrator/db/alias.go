// Package db defines the orchestrator's persistence layer.
package db

import (
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/iface"
	"github.com/dchisholm125/kestrel-hq-sub001/orchestrator/db/kv"
)

// ReadOnlyDatabase exposes the read surface of the intent store.
type ReadOnlyDatabase = iface.ReadOnlyDatabase

// Database is the full intent store contract.
type Database = iface.Database

// ErrNotFound is returned when no intent row exists for the requested id.
var ErrNotFound = kv.ErrNotFound

// ErrVersionConflict is returned by AdvanceIntent on a stale expected version.
var ErrVersionConflict = kv.ErrVersionConflict
