package ffmpeg

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives a monotonically non-decreasing fraction in [0,1]
// as ffmpeg reports processed output time against the expected total
// duration.
type ProgressFunc func(fraction float64)

// RunWithProgress runs ffmpeg with "-progress pipe:1" appended to args and
// reports decode progress on cb as "out_time=" lines arrive on stdout,
// while args' normal stderr diagnostics are discarded. It joins the
// stdout-scanning goroutine and the process-wait goroutine with an
// errgroup, since both must complete (or one must fail) before the call
// returns.
func RunWithProgress(ctx context.Context, ffmpegPath string, args []string, totalSeconds float64, cb ProgressFunc) error {
	full := append(append([]string{}, args...), "-progress", "pipe:1", "-nostats")
	cmd := exec.CommandContext(ctx, ffmpegPath, full...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		scanProgress(stdout, totalSeconds, cb)
		return nil
	})
	g.Go(cmd.Wait)

	return g.Wait()
}

// scanProgress reads ffmpeg's "-progress pipe:1" key=value stream and
// invokes cb for each "out_time=" line it sees.
func scanProgress(r io.Reader, totalSeconds float64, cb ProgressFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok || key != "out_time" {
			continue
		}
		if seconds, ok := parseFFmpegTime(value); ok && cb != nil {
			fraction := 1.0
			if totalSeconds > 0 {
				fraction = seconds / totalSeconds
			}
			if fraction > 1 {
				fraction = 1
			}
			cb(fraction)
		}
	}
}

// parseFFmpegTime parses ffmpeg's "-progress" out_time value, formatted
// as HH:MM:SS.cc, into a duration in seconds.
func parseFFmpegTime(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.ParseFloat(parts[0], 64)
	m, err2 := strconv.ParseFloat(parts[1], 64)
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*time.Hour.Seconds() + m*time.Minute.Seconds() + sec, true
}
