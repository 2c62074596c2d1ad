/*
Package events provides an in-memory event broker for uiwarden security events.

Security components (key vault, config integrity, binary integrity, session
authenticator, policy engine, startup gate) publish events describing
security-relevant outcomes. The audit recorder subscribes and persists them, so
the components themselves stay free of storage concerns.

# Architecture

	┌──────────────┐  Publish   ┌────────────────┐  broadcast  ┌────────────────┐
	│  components  │ ─────────▶ │ Broker (100)   │ ──────────▶ │ subscribers(50)│
	└──────────────┘            └────────────────┘             └───────┬────────┘
	                                                                   ▼
	                                                           audit.Recorder → BoltDB

Publishing never blocks: when the broker buffer is full the event is dropped.
Broker.Dropped counts what was lost.
A security check must not stall because the audit trail is slow. Components
accept the Publisher interface and may be given nil, in which case Emit does
nothing.

# Event Types Catalog

	key.initialized     key pair generated and written
	config.signed       configuration signed
	config.verified     configuration signature verified
	config.rejected     configuration failed verification (metadata: code)
	binary.verified     all binaries matched the manifest
	binary.rejected     a binary was missing or changed (metadata: name, kind)
	token.rejected      a session token was refused (metadata: code)
	policy.denied       a process was denied automation (metadata: code, name)
	bypass.active       a development bypass switch short-circuited a check
	startup.blocked     the startup gate refused to start
	startup.ready       the startup gate passed

Event metadata never contains key material, session secrets, tokens or nonces.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Println(ev.Type, ev.Message)
		}
	}()

	events.Emit(broker, events.EventTokenRejected, "token replayed",
		map[string]string{"code": "TOKEN_REPLAYED"})
*/
package events
