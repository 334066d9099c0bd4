//go:build !linux

package hostenv

import "runtime"

type system struct {
	platform    string
	memoryBytes uint64
}

func readSystem() system {
	return system{platform: runtime.GOOS + " " + runtime.GOARCH}
}
