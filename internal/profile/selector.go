// Package profile implements the Profile Selector (component C of the
// design specification): a pure classifier that maps a set of file paths to
// the named execution profile best suited to processing them.
package profile

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
)

// budget is the time allotted to classification before falling back to the
// default profile (section 4.C).
const budget = 500 * time.Millisecond

var imageSequenceExts = map[string]bool{".tif": true, ".tiff": true, ".dpx": true, ".exr": true}
var largeVideoExts = map[string]bool{".mov": true, ".mp4": true, ".mxf": true, ".avi": true, ".mkv": true}
var proxyMediaExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// Classify applies the ordered rules of section 4.C to paths and returns the
// name of the matching profile (one of catalog.NamedProfiles). It always
// returns within the time budget; if classification does not finish in
// time, it returns catalog.ProfileGeneral.
func Classify(paths []string) string {
	deadline := time.Now().Add(budget)
	name, ok := classify(paths, deadline)
	if !ok {
		return catalog.ProfileGeneral
	}
	return name
}

func classify(paths []string, deadline time.Time) (string, bool) {
	count := len(paths)
	if count == 0 {
		return catalog.ProfileGeneral, true
	}

	extCounts := make(map[string]int, 8)
	totalLen := 0
	for i, p := range paths {
		if i%4096 == 0 && time.Now().After(deadline) {
			return "", false
		}
		ext := strings.ToLower(filepath.Ext(p))
		extCounts[ext]++
		totalLen += len(p)
	}
	if time.Now().After(deadline) {
		return "", false
	}

	dominantExt, dominantCount := "", 0
	for ext, n := range extCounts {
		if n > dominantCount {
			dominantExt, dominantCount = ext, n
		}
	}

	// Rule 1: image-sequences.
	if count > 100 && imageSequenceExts[dominantExt] && float64(dominantCount)/float64(count) >= 0.8 {
		return catalog.ProfileImageSequences, true
	}

	// Rule 2: large-videos — any path with a matching extension.
	for ext := range largeVideoExts {
		if extCounts[ext] > 0 {
			return catalog.ProfileLargeVideos, true
		}
	}

	// Rule 3: proxy-media — any path with a matching extension.
	for ext := range proxyMediaExts {
		if extCounts[ext] > 0 {
			return catalog.ProfileProxyMedia, true
		}
	}

	// Rule 4: small-files.
	meanLen := float64(totalLen) / float64(count)
	if count > 100 && meanLen < 100 {
		return catalog.ProfileSmallFiles, true
	}

	// Rule 5: general.
	return catalog.ProfileGeneral, true
}
