package fingerprint

import "context"

const canvasSize = 200

// collectCanvas draws a fixed scene and returns its encoded bitmap.
func (f *Fingerprinter) collectCanvas(_ context.Context) string {
	if f.probes.Canvas == nil {
		return ""
	}
	canvas, err := f.probes.Canvas.NewCanvas(canvasSize, canvasSize)
	if err != nil {
		f.log.Debug("Canvas probe unavailable", map[string]any{"error": err.Error()})
		return ""
	}
	ctx2d, ok := canvas.Context2D()
	if !ok {
		return ""
	}

	ctx2d.SetTextBaseline("top")
	ctx2d.SetFont("14px Arial")
	ctx2d.SetTextBaseline("alphabetic")
	ctx2d.SetFillStyle("#f60")
	ctx2d.FillRect(125, 1, 62, 20)
	ctx2d.SetFillStyle("#069")
	ctx2d.FillText("Fingerprint", 2, 15)
	ctx2d.SetFillStyle("rgba(102, 204, 0, 0.7)")
	ctx2d.FillText("Canvas Test", 4, 45)

	url, err := canvas.DataURL()
	if err != nil {
		f.log.Debug("Canvas encode failed", map[string]any{"error": err.Error()})
		return ""
	}
	return url
}
