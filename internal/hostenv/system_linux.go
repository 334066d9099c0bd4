//go:build linux

package hostenv

import (
	"strings"

	"golang.org/x/sys/unix"
)

type system struct {
	platform    string
	memoryBytes uint64
}

func readSystem() system {
	var sys system

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		sys.platform = strings.ToLower(unix.ByteSliceToString(uts.Sysname[:])) + " " + unix.ByteSliceToString(uts.Machine[:])
	} else {
		sys.platform = "linux"
	}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err == nil {
		sys.memoryBytes = uint64(info.Totalram) * uint64(info.Unit)
	}
	return sys
}
