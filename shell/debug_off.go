//go:build !debug

package shell

const DebugBuild = false
