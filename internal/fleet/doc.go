// Package fleet talks to the SyncSign cloud on behalf of one account.
//
// It owns everything between an API key and a set of surfaced assets:
//
//	┌──────────────┐  HTTPS  ┌──────────────┐        ┌───────────────┐
//	│ SyncSign API │◄───────►│   Session    │◄──────►│  Integration  │
//	└──────────────┘         │ client+pool  │        │ monitors,     │
//	                         └──────────────┘        │ dispatcher    │
//	                                                 └───────────────┘
//
// # Lifecycle
//
// An Integration moves through Uninitialized, Validating, Discovering, Ready
// and TornDown. Setup failures return it to Uninitialized with an error
// wrapping ErrNotReady so the host can retry later.
//
// # Blocking calls
//
// Every remote call runs on the Executor, a bounded worker pool. Once a
// Session is released no new calls start, and results of calls still in
// flight are dropped.
//
// # Thread Safety
//
// Session, Monitor, Dispatcher and Integration are safe for concurrent use.
package fleet
