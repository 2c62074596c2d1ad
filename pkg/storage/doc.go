/*
Package storage persists the uiwarden security audit journal in BoltDB.

Every security-relevant outcome (key initialization, config signing and
verification, binary checks, token rejections, policy denials, bypass
activations, startup blocks) is published as an event and appended here by
the audit recorder. The journal never contains key material, session secrets
or nonces.

# Layout

	<dataDir>/audit.db
	├── events      8-byte big-endian sequence → SecurityEvent JSON
	└── event_ids   event ID → sequence key

Sequence keys come from the bucket's NextSequence, so a cursor walks events in
the order they were recorded. ListEvents walks backwards from the newest entry
so a Limit keeps the most recent matches, then returns them oldest first.

# Usage

	store, err := storage.NewBoltStore("/var/lib/uiwarden")
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListEvents(storage.EventFilter{
		Type:  "config.rejected",
		Limit: 20,
	})

BoltDB allows a single writer process. Opening a database held by another
process fails after a one second timeout rather than blocking.
*/
package storage
