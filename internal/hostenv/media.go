package hostenv

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/iamgideonidoko/beacon/pkg/fingerprint"
)

var pcmDevice = regexp.MustCompile(`^pcmC(\d+)D(\d+)([cp])$`)

// MediaEnumerator lists ALSA PCM devices and V4L2 video devices.
type MediaEnumerator struct {
	root fs.FS
}

func NewMediaEnumerator(root fs.FS) *MediaEnumerator {
	return &MediaEnumerator{root: root}
}

func (m *MediaEnumerator) EnumerateDevices(ctx context.Context) ([]fingerprint.MediaDevice, error) {
	var devices []fingerprint.MediaDevice

	sound, err := fs.ReadDir(m.root, "dev/snd")
	if err != nil && !isNotExist(err) {
		return nil, err
	}
	for _, entry := range sound {
		match := pcmDevice.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		kind := "audiooutput"
		if match[3] == "c" {
			kind = "audioinput"
		}
		label := m.readLabel(path.Join("proc/asound", "card"+match[1], "id"))
		if label == "" {
			label = "card" + match[1]
		}
		devices = append(devices, fingerprint.MediaDevice{Kind: kind, Label: label + " " + match[2]})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	video, err := fs.Glob(m.root, "dev/video[0-9]*")
	if err != nil {
		return nil, err
	}
	sort.Strings(video)
	for _, node := range video {
		name := path.Base(node)
		label := m.readLabel(path.Join("sys/class/video4linux", name, "name"))
		if label == "" {
			label = name
		}
		devices = append(devices, fingerprint.MediaDevice{Kind: "videoinput", Label: label})
	}
	return devices, nil
}

func (m *MediaEnumerator) readLabel(name string) string {
	data, err := fs.ReadFile(m.root, name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
