//go:build !linux

package host

import "github.com/Swind/go-attach-pool/core"

func pinCurrentThread(cpu int) error {
	return core.ErrNotSupported
}
