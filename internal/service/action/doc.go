// Package action implements the override CLI: it publishes a single
// override action string to the daemon's action topic.
package action
