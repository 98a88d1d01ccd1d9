// Package main implements fsgen, a synthetic filespace generator for
// exercising the Indexer, Profile Selector, and Worker Pool without a real
// network mount. It is grounded on cmd/ddb-datagen's randomized-population
// shape, retargeted from DynamoDB items to files on disk, with a "profile"
// mode producing file mixes that match each of the five named profiles
// (section 3/4.C).
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("fsgen", flag.ExitOnError)
	outDir := fs.String("out", "", "directory to populate (created if absent)")
	profile := fs.String("profile", "general", "one of: general, image-sequences, large-videos, proxy-media, small-files, mixed")
	count := fs.Int("count", 200, "number of files to generate")
	seed := fs.Int64("seed", 1, "random seed")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if *outDir == "" {
		return fmt.Errorf("-out is required")
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	r := rand.New(rand.NewSource(*seed))

	switch *profile {
	case "general":
		return generateGeneral(r, *outDir, *count)
	case "image-sequences":
		return generateImageSequence(r, *outDir, *count)
	case "large-videos":
		return generateLargeVideos(r, *outDir, *count)
	case "proxy-media":
		return generateProxyMedia(r, *outDir, *count)
	case "small-files":
		return generateSmallFiles(r, *outDir, *count)
	case "mixed":
		return generateMixed(r, *outDir, *count)
	default:
		return fmt.Errorf("unknown profile %q", *profile)
	}
}

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	_, _ = r.Read(b)
	return b
}

func writeFile(r *rand.Rand, dir, name string, size int) error {
	return os.WriteFile(filepath.Join(dir, name), randomBytes(r, size), 0o644)
}

// generateGeneral produces a mixed-extension set too small/diverse to
// trigger any specialized classifier rule, matching the "general" fallback
// (section 4.C rule 5).
func generateGeneral(r *rand.Rand, dir string, count int) error {
	if count > 100 {
		count = 100
	}
	exts := []string{".txt", ".pdf", ".docx", ".csv", ".log"}
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("doc_%04d%s", i, exts[r.Intn(len(exts))])
		if err := writeFile(r, dir, name, 1024+r.Intn(1<<16)); err != nil {
			return err
		}
	}
	return nil
}

// generateImageSequence produces a dominant-extension run of single-frame
// image files, matching section 4.C rule 1 (count > 100, one extension >=
// 80% of the set).
func generateImageSequence(r *rand.Rand, dir string, count int) error {
	if count < 101 {
		count = 101
	}
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("frame_%05d.exr", i)
		if err := writeFile(r, dir, name, 2<<20); err != nil {
			return err
		}
	}
	return nil
}

// generateLargeVideos produces a handful of large video-container files,
// matching section 4.C rule 2 (any file with a recognized video extension).
func generateLargeVideos(r *rand.Rand, dir string, count int) error {
	exts := []string{".mov", ".mp4", ".mxf"}
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("clip_%03d%s", i, exts[r.Intn(len(exts))])
		if err := writeFile(r, dir, name, 32<<20); err != nil {
			return err
		}
	}
	return nil
}

// generateProxyMedia produces compressed still-image proxies, matching
// section 4.C rule 3.
func generateProxyMedia(r *rand.Rand, dir string, count int) error {
	exts := []string{".jpg", ".png", ".webp"}
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("proxy_%04d%s", i, exts[r.Intn(len(exts))])
		if err := writeFile(r, dir, name, 64<<10); err != nil {
			return err
		}
	}
	return nil
}

// generateSmallFiles produces a large count of tiny files, matching section
// 4.C rule 4 (count > 100, mean path length < 100 characters).
func generateSmallFiles(r *rand.Rand, dir string, count int) error {
	if count < 101 {
		count = 101
	}
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("tiny_%05d.dat", i)
		if err := writeFile(r, dir, name, 8+r.Intn(32)); err != nil {
			return err
		}
	}
	return nil
}

// generateMixed lays out one subdirectory per named profile under dir, for
// exercising the Profile Selector and directory roll-up together.
func generateMixed(r *rand.Rand, dir string, count int) error {
	per := count / 5
	if per < 1 {
		per = 1
	}
	subdirs := map[string]func(*rand.Rand, string, int) error{
		"general":         generateGeneral,
		"image-sequences": generateImageSequence,
		"large-videos":    generateLargeVideos,
		"proxy-media":     generateProxyMedia,
		"small-files":     generateSmallFiles,
	}
	for name, gen := range subdirs {
		sub := filepath.Join(dir, name)
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return err
		}
		if err := gen(r, sub, per); err != nil {
			return err
		}
	}
	return nil
}
