// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

// Package ktime provides a monotonic nanosecond clock matching the kernel's
// bpf_ktime_get_ns() timebase, so userspace timestamps stored alongside
// kernel-observed ones (flow last-seen) are comparable.
package ktime

import (
	"time"

	"golang.org/x/sys/unix"
)

// Now returns the current CLOCK_MONOTONIC time in nanoseconds.
func Now() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return uint64(ts.Sec)*1e9 + uint64(ts.Nsec)
}
