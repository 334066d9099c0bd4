package fingerprint

import "context"

// WebGLInfo is the unmasked GPU identification pair.
type WebGLInfo struct {
	Render string `json:"render"`
	Vendor string `json:"vendor"`
}

func (f *Fingerprinter) collectWebGL(_ context.Context) WebGLInfo {
	if f.probes.GL == nil {
		return WebGLInfo{}
	}
	gl, err := f.probes.GL.NewGLContext()
	if err != nil || gl == nil {
		return WebGLInfo{}
	}
	if !gl.Extension(debugRendererExtension) {
		return WebGLInfo{}
	}
	return WebGLInfo{
		Vendor: gl.Parameter(UnmaskedVendorWebGL),
		Render: gl.Parameter(UnmaskedRendererWebGL),
	}
}
