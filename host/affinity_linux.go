//go:build linux

package host

import "golang.org/x/sys/unix"

// pinCurrentThread binds the calling OS thread to cpu.
// The caller must hold runtime.LockOSThread.
func pinCurrentThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
