//go:build windows

package adapter

import "os/exec"

// setProcessGroup falls back to killing the direct child; exec.CommandContext does that by default.
func setProcessGroup(_ *exec.Cmd) {}
