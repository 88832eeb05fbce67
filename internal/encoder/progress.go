package encoder

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxRunningProgress = 99

// parseProgress reads ffmpeg "-progress" key=value output and calls report
// with a percentage each time it increases. Percentages stay below 100 until
// the process has exited successfully.
func parseProgress(r io.Reader, duration time.Duration, report func(int)) error {
	last := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if duration <= 0 {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		// out_time_ms is in microseconds as well; ffmpeg never fixed the name.
		if key != "out_time_us" && key != "out_time_ms" {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us <= 0 {
			continue
		}
		pct := int(us * 100 / duration.Microseconds())
		if pct > maxRunningProgress {
			pct = maxRunningProgress
		}
		if pct > last {
			last = pct
			report(pct)
		}
	}
	return scanner.Err()
}
