// Package audit records security events into the storage journal.
//
// One-shot CLI commands hand a Recorder to components as their
// events.Publisher so every event is written before the process exits. The
// long-running serve command attaches the Recorder to an events.Broker with
// Start and detaches it with Stop on shutdown.
package audit
