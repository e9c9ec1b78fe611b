// Package service implements business logic for labelcomposer.
//
// SchemeService sits between the HTTP handlers, the scheme file watcher and
// the repository. It keeps one built LabelCollection per stored scheme so
// reachability queries never rebuild the closure.
//
// # Concurrency
//
// Each scheme has its own read/write lock. Queries share the read lock;
// AddAtom and AddLabel take the write lock, update the collection, then
// persist the new definition. A failed save rebuilds the collection from the
// last persisted definition. Replacing or deleting a scheme marks the old
// entry removed so late writers fail with ErrSchemeNotFound.
//
// # Event System
//
// Every mutation publishes an Event on the EventBus. The hub relays events
// to Server-Sent Events clients. Closure growth warnings are published as
// EventClosureGrowth with the set count and thresholds as payload.
package service
