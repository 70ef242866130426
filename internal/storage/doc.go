// Package storage keeps an optional journal of delivered notifications.
//
// The journal is write-mostly: the notifier appends one record per forwarded
// event and the debug server reads the tail. It never feeds deduplication;
// the dedup window always starts empty after a restart.
package storage
