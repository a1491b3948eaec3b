//go:build !unix

package process

import "os/exec"

// Process groups are unix-only; the default cancel kills the direct child.
func configureProcessGroup(cmd *exec.Cmd) {}
