//go:build !linux

package process

import "os/exec"

// configureSysProcAttr does nothing here. Without Pdeathsig a LiteServ
// child can outlive a killed parent; Close and Stop still reap it.
func configureSysProcAttr(_ *exec.Cmd) {}
