package dolly

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNoBaseline is returned by Compare when no reference frame exists yet.
var ErrNoBaseline = errors.New("no baseline")

// ScriptSupervisor keeps frames consistent between runs by comparing them
// with stored baselines.
type ScriptSupervisor struct {
	baselineDir string
	tolerance   float64 // fraction of pixels allowed to differ
}

// Comparison is the outcome of comparing one frame with its baseline.
type Comparison struct {
	Name       string
	Difference float64 // fraction of differing pixels, 1 when sizes differ
	Tolerance  float64
	DiffPath   string // written when Difference exceeds Tolerance
}

// Passed reports whether the difference is within tolerance.
func (c Comparison) Passed() bool {
	return c.Difference <= c.Tolerance
}

// NewScriptSupervisor creates a comparer rooted at baselineDir with a 5%
// tolerance.
func NewScriptSupervisor(baselineDir string) *ScriptSupervisor {
	return &ScriptSupervisor{
		baselineDir: baselineDir,
		tolerance:   0.05,
	}
}

// WithTolerance sets the allowed fraction of differing pixels.
func (ss *ScriptSupervisor) WithTolerance(tolerance float64) *ScriptSupervisor {
	ss.tolerance = tolerance
	return ss
}

// BaselinePath is where the baseline for name lives.
func (ss *ScriptSupervisor) BaselinePath(name string) string {
	return filepath.Join(ss.baselineDir, name+".png")
}

// Compare compares PNG bytes with the baseline for name. When the baseline
// is missing the error wraps ErrNoBaseline. A failed diff write returns the
// computed result along with the error.
func (ss *ScriptSupervisor) Compare(name string, current []byte) (Comparison, error) {
	return ss.CompareWithin(name, current, ss.tolerance)
}

// CompareWithin is Compare with an explicit tolerance.
func (ss *ScriptSupervisor) CompareWithin(name string, current []byte, tolerance float64) (Comparison, error) {
	result := Comparison{Name: name, Tolerance: tolerance}

	baseline, err := loadImage(ss.BaselinePath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return result, fmt.Errorf("%s: %w", name, ErrNoBaseline)
	}
	if err != nil {
		return result, fmt.Errorf("failed to load baseline: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(current))
	if err != nil {
		return result, fmt.Errorf("failed to decode current frame: %w", err)
	}

	result.Difference = calculateDifference(baseline, img)
	if !result.Passed() {
		result.DiffPath = filepath.Join(ss.baselineDir, "diff", name+"_diff.png")
		if err := writeDiffImage(baseline, img, result.DiffPath); err != nil {
			result.DiffPath = ""
			return result, fmt.Errorf("failed to write diff image: %w", err)
		}
	}
	return result, nil
}

// ValidateConsistency compares the PNG at currentPath with the baseline
// for name and fails when the difference exceeds the tolerance.
func (ss *ScriptSupervisor) ValidateConsistency(name, currentPath string) (Comparison, error) {
	current, err := os.ReadFile(currentPath)
	if err != nil {
		return Comparison{Name: name}, fmt.Errorf("failed to load current: %w", err)
	}
	result, err := ss.Compare(name, current)
	if err != nil {
		return result, err
	}
	if !result.Passed() {
		return result, fmt.Errorf("visual regression detected: %.2f%% difference (tolerance: %.2f%%)",
			result.Difference*100, result.Tolerance*100)
	}
	return result, nil
}

// SetBaseline stores PNG bytes as the baseline for name.
func (ss *ScriptSupervisor) SetBaseline(name string, frame []byte) error {
	if err := os.MkdirAll(ss.baselineDir, 0755); err != nil {
		return fmt.Errorf("failed to create baseline directory: %w", err)
	}
	return os.WriteFile(ss.BaselinePath(name), frame, 0644)
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return png.Decode(file)
}

// calculateDifference returns the fraction of pixels that differ.
func calculateDifference(img1, img2 image.Image) float64 {
	bounds1 := img1.Bounds()
	bounds2 := img2.Bounds()

	if bounds1.Size() != bounds2.Size() {
		return 1.0
	}

	totalPixels := bounds1.Dx() * bounds1.Dy()
	if totalPixels == 0 {
		return 0
	}
	differentPixels := 0

	for y := 0; y < bounds1.Dy(); y++ {
		for x := 0; x < bounds1.Dx(); x++ {
			if !sameColor(img1.At(bounds1.Min.X+x, bounds1.Min.Y+y), img2.At(bounds2.Min.X+x, bounds2.Min.Y+y)) {
				differentPixels++
			}
		}
	}

	return float64(differentPixels) / float64(totalPixels)
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

// writeDiffImage highlights differing pixels in red over a dimmed baseline.
func writeDiffImage(baseline, current image.Image, outputPath string) error {
	bounds := baseline.Bounds()
	diff := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	cb := current.Bounds()

	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			baseColor := baseline.At(bounds.Min.X+x, bounds.Min.Y+y)
			inCurrent := x < cb.Dx() && y < cb.Dy()

			if !inCurrent || !sameColor(baseColor, current.At(cb.Min.X+x, cb.Min.Y+y)) {
				diff.Set(x, y, color.RGBA{255, 0, 0, 255})
				continue
			}
			r, g, b, a := baseColor.RGBA()
			diff.Set(x, y, color.RGBA{uint8(r >> 9), uint8(g >> 9), uint8(b >> 9), uint8(a >> 8)})
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return err
	}
	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, diff)
}
