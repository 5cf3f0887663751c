//go:build doordebug

package logic

// assertRelays makes a relay conflict fatal.
const assertRelays = true
