//go:build windows

package main

import "os/exec"

// Processes started on Windows are already detached from the console session.
func configureDaemonProc(cmd *exec.Cmd) {}
