/*
Package types defines the data structures shared by every panelsync package.

RemoteServer is the transient, normalized view of a server as the upstream
panel reports it. MirroredServer is the persisted copy kept in the mirror
store, carrying local bookkeeping (primary key, owning panel, sync and
modification timestamps, optional owner).

	panel directory ──normalize──▶ RemoteServer ──reconcile──▶ MirroredServer

MirroredServer.Apply copies every panel-owned field from a RemoteServer and
refreshes LastSyncAt/UpdatedAt, so an update always overwrites the mirror with
what the panel reported last.

SyncResult is the outcome of one reconciliation pass and is what the
synchronize operation returns to callers.
*/
package types
