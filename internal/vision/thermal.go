package vision

import (
	"os"
	"strconv"
	"strings"
)

// thermalProbe samples a sysfs thermal zone file. The kernel reports
// millidegrees Celsius as a bare integer; anything unreadable or
// unparseable just means no temperature for this diagnostics interval.
func thermalProbe(path string) func() (float64, bool) {
	return func() (float64, bool) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return 0, false
		}
		milli, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(milli) / 1000.0, true
	}
}
