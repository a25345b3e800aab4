// Package notify builds and dispatches best-effort notifications with
// actionable override hints. Dispatch failures never reach the reversal
// pipeline: they are logged, retried once through a fallback target and
// then dropped.
package notify
