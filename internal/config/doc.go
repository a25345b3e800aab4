// Package config defines the daemon settings and provides helpers to
// load, validate and save them in YAML format.
//
// The Config type covers broker connection details, loop guard tuning
// and per-entity reversal behaviour; SettingsFor merges an entity's
// explicit configuration over the defaults.
package config
