// Package ui provides the Bubble Tea terminal interface for the extractor.
//
// # Views
//
//   - Files: the ordered image selection, the output name and the current
//     submission result. Images are reordered by grabbing a row (m) and
//     moving it with j/k, or one step at a time with J/K.
//   - History: the server's download history, newest first. Enter downloads
//     a not-downloaded entry and then marks it as downloaded.
//   - Login: user id and password. Shown at startup without a credential and
//     whenever the service rejects the token.
//
// # Data Flow
//
// The Model never blocks in Update. Controller calls that touch the network
// (submit, download, abandon, reset, login, history writes) run as tea.Cmd
// functions and report back with a message. A one-second tick copies the
// controller, ledger and quota snapshots into the model.
//
//	key ──> handleKey ──> tea.Cmd ──> submit.Controller ──> *DoneMsg ──> Update
//	tick ─> refreshData (Controller.Snapshot, Ledger.Snapshot, Quota.Snapshot)
//
// The session's re-authentication hook is bound to Program.Send, so an
// expired token moves the program to the Login view from any goroutine.
//
// # Themes
//
// Two palettes (Dracula and Slate) cycle with T. The choice is persisted
// through the ThemeStore, normally the prefs file.
package ui
