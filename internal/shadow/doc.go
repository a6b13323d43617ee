// Package shadow implements transactional shadowing of filesystems.
//
// While a session is active, every registered Wrapper routes its calls to an
// Overlay. The overlay records mutations in a Ledger and writes new content
// into a shadow store under <root>/<session-id>/<name>; the wrapped
// filesystem is not touched. Ending the session either replays the ledger
// against the wrapped filesystem (commit) or discards it (abort), then
// removes the shadow directories.
//
// Only one session may be active per Manager. Ledger reads are safe from
// many goroutines; two writers racing on the same path inside one session
// are not ordered, and the last one to reach the ledger wins.
package shadow
