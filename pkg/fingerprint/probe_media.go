package fingerprint

import (
	"context"
	"sort"
)

// collectMediaDevices returns sorted "kind:label" descriptors.
// Enumeration order is not stable across calls, hence the sort.
func (f *Fingerprinter) collectMediaDevices(ctx context.Context) []string {
	descriptors := []string{}
	if f.probes.Media == nil {
		return descriptors
	}
	devices, err := f.probes.Media.EnumerateDevices(ctx)
	if err != nil {
		f.log.Debug("Media device enumeration failed", map[string]any{"error": err.Error()})
		return descriptors
	}
	for _, device := range devices {
		descriptors = append(descriptors, device.Kind+":"+device.Label)
	}
	sort.Strings(descriptors)
	return descriptors
}
