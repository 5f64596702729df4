/*
Package reconciler converges the local mirror to the server directory of an
upstream panel.

# Algorithm

A sync runs in three strictly ordered phases:

	1. Fetch      the complete directory (all pages) through the Fetcher
	2. Apply      for each server: update if the identifier is mirrored,
	              otherwise create
	3. Sweep      delete mirrored servers of this panel whose identifier
	              was not fetched

If phase 1 fails the run aborts before the store is read or written. A
failed fetch is never treated as an empty directory, so it cannot delete
the mirror. Phase 3 only starts after phase 2 finished for every server,
which keeps records from later pages safe.

Updates always rewrite every mirrored field and refresh LastSyncAt even when
nothing changed, so syncing an unchanged directory twice reports all servers
as updated on the second run. ID, CreatedAt and OwnerUserID survive updates.

# Demo Directory

SyncDemo applies a small embedded directory for environments without a
reachable panel. It counts creates and updates the same way but skips the
sweep: demo data only ever adds.

# Locking

At most one sync runs per panel URL. A second request for the same panel
fails fast with ErrSyncInProgress instead of queueing. LocalLocker covers a
single process; RedisLocker (SET NX PX plus a compare-and-delete release)
covers several instances sharing one store. Syncs of different panels never
block each other.

# Periodic Sync

Loop syncs one target on a ticker, running the first sync at start. Lock
contention is logged at debug level; failures are logged by the engine and
retried on the next tick.
*/
package reconciler
