//go:build linux

// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package thread gives the goroutine that times the receive windows its own realtime
// kernel thread.
package thread

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
)

const FIFO = 1 // fifo scheduling policy
const RR = 2   // round-robin scheduling policy

// DefaultPriority is somewhere in the lower middle of the realtime range.
const DefaultPriority = 10

type schedParam struct {
	Priority int32
}

// Realtime locks the calling goroutine to its own kernel thread and elevates that
// thread's priority to realtime using the round-robin policy. Priority must be in 1..99.
// On failure the goroutine stays locked to its thread at normal priority.
func Realtime(priority int) error {
	if priority < 1 || priority > 99 {
		return errors.Errorf("thread: invalid realtime priority %d", priority)
	}
	runtime.LockOSThread()
	tid := syscall.Gettid()
	res, _, errno := syscall.RawSyscall(syscall.SYS_SCHED_SETSCHEDULER, uintptr(tid),
		uintptr(RR), uintptr(unsafe.Pointer(&schedParam{int32(priority)})))
	if res != 0 {
		return errors.Wrapf(errno, "thread: cannot set realtime priority %d", priority)
	}
	return nil
}
