package schedule

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

// TideReading is a tide level reported by the topside host
type TideReading struct {
	At      time.Time
	LevelCM float64
}

// TideCache keeps recent tide readings in a text file, one
// "<unix seconds> <level cm>" pair per line
type TideCache struct {
	path string
	max  int
}

// NewTideCache keeps at most max readings
func NewTideCache(path string, max int) *TideCache {
	if max < 1 {
		max = 1
	}
	return &TideCache{path: path, max: max}
}

// Readings returns the cached readings, oldest first. Malformed lines are
// skipped.
func (c *TideCache) Readings() ([]TideReading, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tide cache: %w", err)
	}

	var readings []TideReading
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		sec, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			continue
		}
		level, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		readings = append(readings, TideReading{At: time.Unix(sec, 0), LevelCM: level})
	}
	return readings, scanner.Err()
}

// Latest returns the newest reading
func (c *TideCache) Latest() (TideReading, bool, error) {
	readings, err := c.Readings()
	if err != nil || len(readings) == 0 {
		return TideReading{}, false, err
	}
	return readings[len(readings)-1], true, nil
}

// Record appends a reading, dropping the oldest beyond the limit
func (c *TideCache) Record(r TideReading) error {
	readings, err := c.Readings()
	if err != nil {
		return err
	}
	readings = append(readings, r)
	if len(readings) > c.max {
		readings = readings[len(readings)-c.max:]
	}

	var buf bytes.Buffer
	for _, r := range readings {
		fmt.Fprintf(&buf, "%d %.1f\n", r.At.Unix(), r.LevelCM)
	}
	return WriteAtomic(c.path, buf.Bytes())
}
