// Package bytesize parses and formats byte counts such as "512KB" or "1.5 GB".
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Binary byte size units.
const (
	B  int64 = 1
	KB int64 = 1024
	MB int64 = 1024 * KB
	GB int64 = 1024 * MB
	TB int64 = 1024 * GB
)

var sizePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([a-zA-Z]*)\s*$`)

var units = []struct {
	size  int64
	names []string
}{
	{TB, []string{"TB", "T", "TI", "TIB"}},
	{GB, []string{"GB", "G", "GI", "GIB"}},
	{MB, []string{"MB", "M", "MI", "MIB"}},
	{KB, []string{"KB", "K", "KI", "KIB"}},
	{B, []string{"B", ""}},
}

// Parse converts a size like "100MB", "1.5 GB" or "1024" into bytes.
// Units are binary and case-insensitive; no unit means bytes.
func Parse(s string) (int64, error) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", m[1])
	}

	unit := strings.ToUpper(m[2])
	for _, u := range units {
		for _, n := range u.names {
			if unit == n {
				return int64(value * float64(u.size)), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}

// Format renders n with the largest unit that keeps the value at least 1.
func Format(n int64) string {
	for _, u := range units[:len(units)-1] {
		if n >= u.size {
			return fmt.Sprintf("%.2f %s", float64(n)/float64(u.size), u.names[0])
		}
	}
	return fmt.Sprintf("%d B", n)
}
