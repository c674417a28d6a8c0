//go:build linux

// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package thread

import (
	"os"
	"runtime"
	"testing"
)

func TestInvalidPriority(t *testing.T) {
	for _, p := range []int{0, -1, 100} {
		if err := Realtime(p); err == nil {
			t.Fatalf("priority %d accepted", p)
		}
	}
}

func TestRealtime(t *testing.T) {
	if os.Getuid() != 0 {
		t.Skip("needs root")
	}
	done := make(chan error)
	go func() {
		defer runtime.UnlockOSThread()
		done <- Realtime(DefaultPriority)
	}()
	if err := <-done; err != nil {
		t.Skipf("realtime scheduling unavailable: %s", err)
	}
}
