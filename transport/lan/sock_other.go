//go:build !unix

package lan

import "syscall"

func reuseControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
