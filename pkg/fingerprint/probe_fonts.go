package fingerprint

import "context"

var (
	baseFonts = []string{"monospace", "sans-serif", "serif"}

	candidateFonts = []string{
		"Arial",
		"Arial Black",
		"Arial Narrow",
		"Calibri",
		"Cambria",
		"Cambria Math",
		"Comic Sans MS",
		"Courier",
		"Courier New",
		"Georgia",
		"Helvetica",
		"Impact",
		"Times",
		"Times New Roman",
		"Trebuchet MS",
		"Verdana",
	}
)

const (
	fontTestString = "mmmmmmmmmmlli"
	fontTestSizePx = 72
	// A font counts as installed when this many baselines differ.
	fontMinMismatches = 2
)

// collectFonts returns the candidate fonts whose rendering differs from
// the generic-family baselines, in candidate order.
func (f *Fingerprinter) collectFonts(ctx context.Context) []string {
	detected := []string{}
	if f.probes.Fonts == nil {
		return detected
	}

	baselines := make(map[string]Box, len(baseFonts))
	for _, base := range baseFonts {
		box, err := f.probes.Fonts.Measure(ctx, []string{base}, fontTestString, fontTestSizePx)
		if err != nil {
			f.log.Debug("Font baseline unavailable", map[string]any{"family": base, "error": err.Error()})
			return detected
		}
		baselines[base] = box
	}

	for _, font := range candidateFonts {
		mismatches := 0
		for _, base := range baseFonts {
			box, err := f.probes.Fonts.Measure(ctx, []string{font, base}, fontTestString, fontTestSizePx)
			if err != nil {
				continue
			}
			if box != baselines[base] {
				mismatches++
			}
		}
		if mismatches >= fontMinMismatches {
			detected = append(detected, font)
		}
	}
	return detected
}
