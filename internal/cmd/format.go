package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/rum/internal/controller"
	"github.com/steveyegge/rum/internal/procinfo"
	"github.com/steveyegge/rum/internal/run"
	"github.com/steveyegge/rum/internal/style"
)

// minIDWidth is the shortest id prefix shown in listings.
const minIDWidth = 8

const timeLayout = "2006-01-02 15:04:05"

// statusTag is the bracketed status shown in listings.
func statusTag(e controller.Entry) string {
	switch e.Health {
	case controller.HealthStale:
		return "[unknown]"
	case controller.HealthRunning:
		return "[running]"
	}
	s := e.Run.Status
	switch {
	case s.Succeeded():
		return "[done]"
	case s.State == run.StateExited:
		return fmt.Sprintf("[failed:%d]", s.Code)
	case s.State == run.StateSignaled:
		return "[killed]"
	}
	return "[unknown]"
}

// styledTag is statusTag with color.
func styledTag(e controller.Entry) string {
	tag := statusTag(e)
	switch {
	case e.Health == controller.HealthStale:
		return style.Warning.Render(tag)
	case e.Health == controller.HealthRunning:
		return style.Info.Render(tag)
	case e.Run.Status.Succeeded():
		return style.Success.Render(tag)
	case e.Run.Status.State == run.StateSignaled:
		return style.Killed.Render(tag)
	}
	return style.Error.Render(tag)
}

// uniquePrefixLen returns the shortest prefix length, at least min, that
// tells all ids apart.
func uniquePrefixLen(ids []string, min int) int {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	n := min
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		common := 0
		for common < len(a) && common < len(b) && a[common] == b[common] {
			common++
		}
		if common+1 > n {
			n = common + 1
		}
	}
	return n
}

// shellJoin renders a command the way a user would type it.
func shellJoin(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = shellQuote(arg)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r == '-' || r == '_' || r == '.' || r == '/' || r == '=' || r == ':' || r == ',' || r == '+' || r == '@' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatUint(n, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// runJSON is the --json shape of a run.
type runJSON struct {
	*run.Run
	Health  string       `json:"health"`
	Tag     string       `json:"tag"`
	Output  string       `json:"output"`
	Process *processJSON `json:"process,omitempty"`
}

type processJSON struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name,omitempty"`
	RSS        uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent"`
	Threads    int32     `json:"threads,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

func toJSON(e controller.Entry, store *run.Store) runJSON {
	out := runJSON{
		Run:    e.Run,
		Health: string(e.Health),
		Tag:    statusTag(e),
		Output: store.OutputPath(e.Run.ID),
	}
	if p := e.Process; p != nil {
		out.Process = snapshotJSON(p)
	}
	return out
}

func snapshotJSON(p *procinfo.Snapshot) *processJSON {
	return &processJSON{
		PID:        p.PID,
		Name:       p.Name,
		RSS:        p.RSS,
		CPUPercent: p.CPUPercent,
		Threads:    p.Threads,
		CreatedAt:  p.CreatedAt,
	}
}
