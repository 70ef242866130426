// Package notifier delivers distinct notification events to the user.
//
// Events are queued and handed to the configured sinks (desktop toast,
// optionally Telegram) by a single worker, so delivery order matches the order
// in which the subscriber forwarded them. A token bucket throttles bursts.
//
// # Logos
//
// Event logos are bare file names resolved against ImagesDir; a blank logo
// falls back to DefaultLogo.
//
// # History
//
// The service keeps a small in-memory history of recent deliveries for the
// debug server, and optionally appends each delivery to the storage journal.
package notifier
