//go:build !linux

// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package thread

import "github.com/pkg/errors"

const DefaultPriority = 10

// Realtime is only supported on Linux.
func Realtime(priority int) error {
	return errors.New("thread: realtime scheduling requires linux")
}
