// Package calibration maps raw thermal pixel intensities to temperatures
// using a table of known reference points.
package calibration

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrNotLoaded is returned when interpolating without a usable table.
	ErrNotLoaded = errors.New("calibration table not loaded")
	// ErrInvalidPixel is returned for a NaN pixel value.
	ErrInvalidPixel = errors.New("invalid pixel value")
)

// Table pairs pixel values with known temperatures by index.
// Pixels are non-decreasing. A Table is immutable once built.
type Table struct {
	pixels       []float64
	temperatures []float64
}

// LoadValues reads one float per line from path. Blank lines are skipped.
func LoadValues(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid value %q: %w", path, line, s, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s:%d: value %q is not finite", path, line, s)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// New builds a table from copies of the paired sequences.
func New(pixels, temperatures []float64) (*Table, error) {
	if len(pixels) == 0 {
		return nil, errors.New("calibration table is empty")
	}
	if len(pixels) != len(temperatures) {
		return nil, fmt.Errorf("calibration length mismatch: %d pixel values, %d temperatures", len(pixels), len(temperatures))
	}
	for i := range pixels {
		if math.IsNaN(pixels[i]) || math.IsNaN(temperatures[i]) {
			return nil, fmt.Errorf("calibration point %d is NaN", i)
		}
	}
	if !sort.Float64sAreSorted(pixels) {
		return nil, errors.New("calibration pixel values must be non-decreasing")
	}
	return &Table{
		pixels:       slices.Clone(pixels),
		temperatures: slices.Clone(temperatures),
	}, nil
}

// Len is the number of calibration points.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.pixels)
}

// Load reads both calibration files and builds a table. Failures are
// logged; callers may keep running without a table.
func Load(pixelPath, tempPath string, logger *slog.Logger) (*Table, error) {
	temps, err := LoadValues(tempPath)
	if err != nil {
		logger.Error("error loading known temperatures", "path", tempPath, "error", err)
		return nil, err
	}
	logger.Debug("loaded known temperatures", "path", tempPath, "values", temps)

	pixels, err := LoadValues(pixelPath)
	if err != nil {
		logger.Error("error loading pixel values", "path", pixelPath, "error", err)
		return nil, err
	}
	logger.Debug("loaded pixel values", "path", pixelPath, "values", pixels)

	t, err := New(pixels, temps)
	if err != nil {
		logger.Error("invalid calibration table", "error", err)
		return nil, err
	}
	logger.Info("calibration table loaded", "points", len(pixels))
	return t, nil
}

// Temperature converts a raw pixel value with clamped linear interpolation.
// Values outside the table return the first or last temperature.
// A NaN pixel returns ErrInvalidPixel.
func (t *Table) Temperature(pixel float64) (float64, error) {
	if t == nil || len(t.pixels) == 0 {
		return 0, ErrNotLoaded
	}
	if math.IsNaN(pixel) {
		return 0, ErrInvalidPixel
	}
	n := len(t.pixels)
	if pixel < t.pixels[0] {
		return t.temperatures[0], nil
	}
	if pixel >= t.pixels[n-1] {
		return t.temperatures[n-1], nil
	}

	// First index with pixels[i] > pixel; i is in [1, n-1].
	i := sort.Search(n, func(i int) bool { return t.pixels[i] > pixel })
	x0, x1 := t.pixels[i-1], t.pixels[i]
	y0, y1 := t.temperatures[i-1], t.temperatures[i]
	if pixel == x0 {
		return y0, nil
	}
	return y0 + (pixel-x0)*(y1-y0)/(x1-x0), nil
}
