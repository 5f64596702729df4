/*
Package storage persists the local mirror of upstream panel servers.

Two backends implement the Store interface:

  - BoltStore (default) keeps JSON documents in an embedded bbolt file at
    <dataDir>/panelsync.db.
  - GormStore keeps the same records in SQLite through gorm, for operators
    who want to query the mirror with ordinary SQL tooling.

# Bucket Structure

	servers   identifier -> MirroredServer (JSON)
	syncs     panel URL  -> last SyncResult (JSON)

Records are keyed by the upstream identifier. The local ID is a UUID
assigned on creation and never used for lookups by the reconciler.

# Semantics

CreateServer fails with ErrExists when the identifier is already present and
UpdateServer fails with ErrNotFound when it is absent, so a reconciler bug
cannot silently produce duplicate rows. DeleteServersNotIn only considers
records owned by the given panel URL; mirrors of other panels are untouched.

Every write runs in a single transaction, and a read never observes a
partially applied DeleteServersNotIn.
*/
package storage
