package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Binary byte units.
const (
	BytesPerKB int64 = 1 << (10 * (iota + 1))
	BytesPerMB
	BytesPerGB
	BytesPerTB
)

var byteUnits = []struct {
	size    int64
	name    string
	aliases []string
}{
	{BytesPerTB, "TB", []string{"TB", "T"}},
	{BytesPerGB, "GB", []string{"GB", "G"}},
	{BytesPerMB, "MB", []string{"MB", "M"}},
	{BytesPerKB, "KB", []string{"KB", "K"}},
}

// FormatBytes renders n with the largest binary unit it reaches, e.g.
// "512 B", "1.50 KB" or "16.00 MB". Negative counts print as "0 B".
func FormatBytes(n int64) string {
	for _, u := range byteUnits {
		if n >= u.size {
			return fmt.Sprintf("%.2f %s", float64(n)/float64(u.size), u.name)
		}
	}
	return fmt.Sprintf("%d B", max(n, 0))
}

// ParseBytes reads sizes such as "16MB", "1.5 GB", "512k" or "4096" in
// binary units, case-insensitively.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	num := strings.TrimRight(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz ")
	if num == "" {
		return 0, fmt.Errorf("invalid size %q: no number found", s)
	}
	value, err := strconv.ParseFloat(num, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid size %q: bad number", s)
	}

	unit := strings.ToUpper(strings.TrimSpace(s[len(num):]))
	if unit == "" || unit == "B" {
		return int64(value), nil
	}
	for _, u := range byteUnits {
		for _, alias := range u.aliases {
			if unit == alias {
				return int64(value * float64(u.size)), nil
			}
		}
	}
	return 0, fmt.Errorf("invalid size %q: unknown unit", s)
}
