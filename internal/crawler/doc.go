// Package crawler implements the rate-limited, resumable crawl engine: the
// process-wide Throttle every network call goes through, and the Planner that
// paginates an entity's pages against a SnapshotStore.
package crawler
