package hostenv

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
)

const debugRendererInfo = "WEBGL_debug_renderer_info"

var errNoGPU = errors.New("no DRM render device found")

var pciVendors = map[string]string{
	"1002": "AMD",
	"10de": "NVIDIA Corporation",
	"8086": "Intel",
	"1af4": "Red Hat, Inc.",
	"15ad": "VMware, Inc.",
	"1234": "QEMU",
	"5143": "Qualcomm",
	"13b5": "ARM",
}

// GPU reads the first DRM card from sysfs and exposes it through the
// debug renderer parameters.
type GPU struct {
	root fs.FS
}

func NewGPU(root fs.FS) *GPU {
	return &GPU{root: root}
}

func (g *GPU) NewGLContext() (fingerprint.GLContext, error) {
	cards, err := fs.Glob(g.root, "sys/class/drm/card[0-9]*/device/uevent")
	if err != nil {
		return nil, err
	}
	sort.Strings(cards)
	for _, uevent := range cards {
		info, err := readUevent(g.root, uevent)
		if err != nil || info["PCI_ID"] == "" {
			continue
		}
		vendorID, deviceID, _ := strings.Cut(strings.ToLower(info["PCI_ID"]), ":")
		vendor, ok := pciVendors[vendorID]
		if !ok {
			vendor = "PCI " + vendorID
		}
		renderer := fmt.Sprintf("%s %s:%s", vendor, vendorID, deviceID)
		if driver := info["DRIVER"]; driver != "" {
			renderer += " (" + driver + ")"
		}
		return &glContext{vendor: vendor, renderer: renderer}, nil
	}
	return nil, errNoGPU
}

func readUevent(root fs.FS, name string) (map[string]string, error) {
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if key, value, ok := strings.Cut(scanner.Text(), "="); ok {
			values[key] = value
		}
	}
	return values, scanner.Err()
}

type glContext struct {
	vendor   string
	renderer string
}

func (c *glContext) Extension(name string) bool {
	return name == debugRendererInfo
}

func (c *glContext) Parameter(name int) string {
	switch name {
	case fingerprint.UnmaskedVendorWebGL:
		return c.vendor
	case fingerprint.UnmaskedRendererWebGL:
		return c.renderer
	default:
		return ""
	}
}
