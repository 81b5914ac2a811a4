// Package configs provides embedded configuration templates for swarmmem.
//
// Templates are embedded at build time with go:embed so they ship in every
// distribution. `swarmmem config init` writes them out for editing; the
// merge order (defaults, user config, store config, SWARMMEM_* environment
// variables) is documented in internal/config.
package configs

import _ "embed"

// UserConfigTemplate is the machine-level configuration template,
// written to ~/.config/swarmmem/config.yaml by `swarmmem config init`.
// Holds settings shared by every store on this machine, like the Ollama
// host and embedding provider.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// StoreConfigTemplate is the per-store configuration template, written
// as .swarmmem.yaml next to the data directory by `swarmmem config init`.
// Holds settings tied to one store, like retention limits.
//
//go:embed store-config.example.yaml
var StoreConfigTemplate string
