package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/helixir/pubmed-harvester/internal/domain"
	"github.com/helixir/pubmed-harvester/internal/harvest"
)

const (
	defaultLineWidth = 80
	barWidth         = 30
)

var severityMarks = map[domain.Severity]string{
	domain.SeverityInfo:    "-",
	domain.SeveritySuccess: "+",
	domain.SeverityWarning: "!",
	domain.SeverityError:   "x",
}

// progressBar renders run progress on a single redrawn terminal line and
// prints milestone messages above it.
type progressBar struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	drawn   bool
	lastLen int
	done    int
	total   int
}

func newProgressBar(out io.Writer, width int) *progressBar {
	if width <= 0 {
		width = defaultLineWidth
	}
	return &progressBar{out: out, width: width}
}

// OnProgress implements harvest.Observer.
func (p *progressBar) OnProgress(processed, total int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drawn && total == p.total && processed <= p.done {
		return
	}
	p.done, p.total = processed, total

	line := runewidth.Truncate(progressLine(processed, total, elapsed), p.width, "")
	pad := p.lastLen - runewidth.StringWidth(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprint(p.out, "\r"+line+strings.Repeat(" ", pad))
	p.drawn = true
	p.lastLen = runewidth.StringWidth(line)
}

// OnMessage implements harvest.Observer.
func (p *progressBar) OnMessage(text string, sev domain.Severity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLineLocked()
	mark, ok := severityMarks[sev]
	if !ok {
		mark = "-"
	}
	fmt.Fprintf(p.out, "%s %s\n", mark, runewidth.Wrap(text, p.width-2))
}

// Close terminates a drawn progress line.
func (p *progressBar) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLineLocked()
}

func (p *progressBar) endLineLocked() {
	if p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
		p.lastLen = 0
	}
}

// progressLine formats "[#####-----]  50% 1,000/2,000  0m 12s".
func progressLine(processed, total int, elapsed time.Duration) string {
	pct := harvest.Percent(processed, total)
	filled := barWidth * pct / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	return fmt.Sprintf("[%s] %3d%% %s/%s  %s",
		bar, pct, harvest.FormatCount(processed), harvest.FormatCount(total), harvest.FormatElapsed(elapsed))
}
