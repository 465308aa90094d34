//go:build !linux && !darwin

package xio

import "errors"

func isTerminal(fd int) bool { return false }

func ttyOutQueue(fd int) int { return 0 }

func makeCbreak(fd int) (func() error, error) {
	return nil, errors.New("xio: cbreak mode not supported on this platform")
}
