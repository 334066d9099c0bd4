package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Weights for different signal categories.
type Weights struct {
	Hardware    float64
	Environment float64
	Software    float64
}

var DefaultWeights = Weights{
	Hardware:    0.8,
	Environment: 0.5,
	Software:    0.2,
}

// FeatureVector represents a component set as weighted features.
type FeatureVector struct {
	Features map[string]float64
}

// Calculator compares component sets of two fingerprints.
type Calculator struct {
	weights Weights
}

func NewCalculator(weights Weights) *Calculator {
	return &Calculator{weights: weights}
}

// ExtractFeatures converts components into a weighted feature vector.
// Components missing from the set contribute no feature.
func (c *Calculator) ExtractFeatures(components Components) FeatureVector {
	features := make(map[string]float64)
	add := func(name string, weight float64) {
		value, ok := components[name]
		if !ok || !isPresent(value) {
			return
		}
		features[name+":"+featureValue(value)] = weight
	}

	// Hardware features
	add(ComponentCanvas, c.weights.Hardware)
	add(ComponentAudio, c.weights.Hardware)
	add(ComponentWebGL, c.weights.Hardware)
	add(ComponentHardwareConcurrency, c.weights.Hardware*0.6)
	add(ComponentDeviceMemory, c.weights.Hardware*0.6)
	add(ComponentColorDepth, c.weights.Hardware*0.5)
	add(ComponentMediaDevices, c.weights.Hardware*0.4)

	// Environment features
	add(ComponentTimezone, c.weights.Environment)
	add(ComponentLanguage, c.weights.Environment)
	add(ComponentFonts, c.weights.Environment*0.9)
	add(ComponentScreenResolution, c.weights.Environment*0.7)
	add(ComponentAvailableScreenResolution, c.weights.Environment*0.5)
	add(ComponentTimezoneOffset, c.weights.Environment*0.5)

	// Software features, the most volatile
	add(ComponentPlatform, c.weights.Software)
	add(ComponentPlugins, c.weights.Software)
	if ua, ok := components[ComponentUserAgent].(string); ok {
		// Browser updates should not look like a new device.
		if browserVersion := extractBrowserVersion(ua); browserVersion != "" {
			features["browser:"+browserVersion] = c.weights.Software
		}
	}

	return FeatureVector{Features: features}
}

// JaccardSimilarity computes weighted Jaccard similarity between two feature vectors.
func (c *Calculator) JaccardSimilarity(v1, v2 FeatureVector) float64 {
	if len(v1.Features) == 0 || len(v2.Features) == 0 {
		return 0.0
	}

	var intersection, union float64

	allKeys := make(map[string]bool)
	for k := range v1.Features {
		allKeys[k] = true
	}
	for k := range v2.Features {
		allKeys[k] = true
	}

	for key := range allKeys {
		w1, exists1 := v1.Features[key]
		w2, exists2 := v2.Features[key]

		switch {
		case exists1 && exists2:
			intersection += math.Min(w1, w2)
			union += math.Max(w1, w2)
		case exists1:
			union += w1
		default:
			union += w2
		}
	}

	if union == 0 {
		return 0.0
	}

	return intersection / union
}

// Similarity scores two fingerprints in [0,1]. Identical device ids
// short-circuit to 1.
func (c *Calculator) Similarity(a, b DeviceFingerprint) float64 {
	if a.DeviceID != "" && a.DeviceID == b.DeviceID {
		return 1.0
	}
	return c.JaccardSimilarity(c.ExtractFeatures(a.Components), c.ExtractFeatures(b.Components))
}

// featureValue renders a component value as a short stable token.
func featureValue(value any) string {
	switch v := value.(type) {
	case string:
		if len(v) > 64 {
			return hashString(v)
		}
		return v
	case []string:
		return hashStringSlice(v)
	case WebGLInfo:
		return v.Vendor + "|" + v.Render
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func hashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:8])
}

// hashStringSlice creates a consistent hash from a string slice.
func hashStringSlice(items []string) string {
	if len(items) == 0 {
		return "empty"
	}

	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.Strings(sorted)

	return hashString(strings.Join(sorted, ","))
}

// extractBrowserVersion extracts browser name and major version from UA.
func extractBrowserVersion(ua string) string {
	if ua == "" {
		return ""
	}

	ua = strings.ToLower(ua)

	browsers := []string{"edg", "opr", "firefox", "chrome", "safari", "go-http-client", "beacon"}
	for _, browser := range browsers {
		if idx := strings.Index(ua, browser+"/"); idx != -1 {
			// Major version only
			parts := strings.SplitN(ua[idx:], "/", 2)
			version := strings.Split(parts[1], ".")[0]
			if fields := strings.Fields(version); len(fields) > 0 {
				version = fields[0]
			}
			return browser + ":" + version
		}
	}

	return "unknown"
}
