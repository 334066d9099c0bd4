// Package hostenv implements the fingerprint probe capabilities for a
// process running directly on a machine. Browser concepts map onto the
// closest host facts: the terminal stands in for the screen, sound and
// video device nodes for media devices, DRM cards for the GPU and the
// linked Go modules for plugins.
package hostenv

import (
	"io/fs"
	"os"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
	"github.com/iamgideonidoko/beacon/pkg/logger"
)

type Options struct {
	// Root is the filesystem device and font lookups read from.
	// Defaults to the host root directory.
	Root fs.FS
	// UserAgent overrides the generated user agent.
	UserAgent string
	// Version is embedded in the generated user agent.
	Version string
	// Terminal is the file descriptor whose window size is reported as
	// the screen. Defaults to stdout.
	Terminal int
	// DurableStorage reports whether a durable key/value store is
	// configured, exposed as the localStorage and openDatabase flags.
	DurableStorage bool
	FontDirs       []string
	Logger         *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Root == nil {
		o.Root = os.DirFS("/")
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Terminal == 0 {
		o.Terminal = int(os.Stdout.Fd())
	}
	if o.FontDirs == nil {
		o.FontDirs = DefaultFontDirs()
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	return o
}

// Probes returns every host capability wired for fingerprinting.
func Probes(opts Options) fingerprint.Probes {
	opts = opts.withDefaults()
	log := opts.Logger.WithField("component", "hostenv")
	return fingerprint.Probes{
		Environment: NewEnvironment(opts),
		Canvas:      CanvasFactory{},
		GL:          NewGPU(opts.Root),
		Audio:       AudioBackend{},
		Fonts:       NewFontMeasurer(opts.FontDirs, log),
		Media:       NewMediaEnumerator(opts.Root),
	}
}
