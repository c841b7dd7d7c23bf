//go:build debug

package shell

// DebugBuild enables devtools on startup.
const DebugBuild = true
