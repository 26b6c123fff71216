// Package app is the composition root for the extractor client.
//
// # Overview
//
// Run loads configuration, opens the log file, and wires the session, the
// HTTP client, the quota tracker, the history ledger and the submission
// controller. It then either drives a single headless submission or hands
// control to the terminal UI.
//
// # Startup
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.LoadDotEnv() / config.Load()
//	       ├─────> openLogger()            slog text handler on log_file
//	       ├─────> wire()                  session, client, tracker, ledger, controller
//	       ├─────> login()                 EXTRACTOR_USER / EXTRACTOR_PASSWORD
//	       ├─────> warmUp()                quota + history in parallel (errgroup)
//	       ├─────> StartPoller()           background refresh with backoff
//	       └─────> ui.Run()                TUI (blocks)
//
// With Options.Files set, runHeadless replaces the last two steps: it adds
// the files in order, submits, downloads (or abandons with KeepRemote) and
// prints a summary of the merged workbook.
//
// # Background Refresh
//
// The poller refreshes the history ledger and the monthly count while a
// credential is held. Consecutive failures double the wait up to five
// minutes. Errors are logged at debug level only; background refresh never
// redirects to login.
package app
