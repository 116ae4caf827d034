// Package persistence keeps mtpctl's state between runs: the device used
// last and, per device, the storage and shell directory that were
// selected. State is a JSON file written atomically.
package persistence
