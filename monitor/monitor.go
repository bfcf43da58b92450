// SPDX-License-Identifier: GPL-3.0-or-later
package monitor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/CrawX/go-imap-triage/artifact"
	"github.com/CrawX/go-imap-triage/checkpoint"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	DefaultInterval = 3 * time.Second
	clearScreen     = "\033[2J\033[H"
	ruleWidth       = 72
)

type Config struct {
	OutputDir   string
	SharedRules string
	Interval    time.Duration
	// ClearScreen redraws in place instead of appending frames.
	ClearScreen bool
}

// AccountProgress is what the monitor knows about one account. Counts are
// zero when unknown.
type AccountProgress struct {
	Account string
	Phase   Phase
	// Fetched and Target describe the running fetch phase.
	Fetched int
	Target  int
	// InboxTotal is the INBOX size seen by pass1.
	InboxTotal int
	// Remaining is the number of messages left after the archive rules.
	Remaining int
	Rate      float64
	HasRate   bool
}

// Fraction of the fetch phase completed.
func (p *AccountProgress) Fraction() float64 {
	if p.Target <= 0 {
		return 0
	}
	return float64(p.Fetched) / float64(p.Target)
}

func (p *AccountProgress) ETA() string {
	if !p.HasRate {
		return NoETA
	}
	return FormatETA(float64(p.Target-p.Fetched) / p.Rate)
}

type styles struct {
	title   lipgloss.Style
	account lipgloss.Style
	phase   lipgloss.Style
	rule    lipgloss.Style
	done    lipgloss.Style
}

// Monitor renders the progress of every account below the output directory.
// It only reads files and never opens an IMAP connection.
type Monitor struct {
	config  Config
	out     io.Writer
	now     func() time.Time
	windows map[string]*RateWindow
	styles  styles

	l *logrus.Logger
}

func NewMonitor(out io.Writer, config Config) *Monitor {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	r := lipgloss.NewRenderer(out)
	return &Monitor{
		config:  config,
		out:     out,
		now:     time.Now,
		windows: map[string]*RateWindow{},
		styles: styles{
			title:   r.NewStyle().Bold(true),
			account: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
			phase:   r.NewStyle().Foreground(lipgloss.Color("245")),
			rule:    r.NewStyle().Foreground(lipgloss.Color("241")),
			done:    r.NewStyle().Foreground(lipgloss.Color("42")),
		},
		l: log.Logger(log.LOG_MONITOR),
	}
}

// Poll reads the current state of all accounts and feeds the rate windows.
func (m *Monitor) Poll() ([]*AccountProgress, error) {
	dirs, err := artifact.Accounts(m.config.OutputDir)
	if err != nil {
		return nil, err
	}

	now := m.now()
	progress := make([]*AccountProgress, 0, len(dirs))
	for _, d := range dirs {
		p := m.poll(d, now)
		progress = append(progress, p)
	}
	return progress, nil
}

func (m *Monitor) poll(d *artifact.Dir, now time.Time) *AccountProgress {
	p := &AccountProgress{Account: d.Account, Phase: DetectPhase(d)}
	baseLogger := m.l.WithFields(logrus.Fields{"account": d.Account, "phase": p.Phase})

	if summary, err := d.ReadSummary(); err == nil {
		p.InboxTotal = summary.TotalMessages
	}

	switch p.Phase {
	case PhaseP1Fetch:
		p.Fetched, p.Target = m.checkpointProgress(d, checkpoint.Metadata)
		if p.Target == 0 {
			p.Target = p.InboxTotal
		}
	case PhaseP2Fetch:
		p.Fetched, p.Target = m.checkpointProgress(d, checkpoint.Bodies)
		if p.Target == 0 {
			remaining, err := m.remainingFromRules(d)
			if err != nil {
				baseLogger.WithField("error", err).Debug("Could not count remaining messages")
			}
			p.Target = remaining
		}
		p.Remaining = p.Target
	case PhaseP2Done:
		snapshot, err := d.ReadMessages(artifact.RemainingFile)
		if err != nil {
			baseLogger.WithField("error", err).Debug("Could not read remaining messages")
		} else {
			p.Remaining = len(snapshot.Messages)
		}
	}

	key := d.Account + "|" + string(p.Phase)
	if p.Phase != PhaseP1Fetch && p.Phase != PhaseP2Fetch {
		delete(m.windows, d.Account+"|"+string(PhaseP1Fetch))
		delete(m.windows, d.Account+"|"+string(PhaseP2Fetch))
		return p
	}
	w, ok := m.windows[key]
	if !ok {
		w = &RateWindow{}
		m.windows[key] = w
	}
	w.Add(now, p.Fetched)
	p.Rate, p.HasRate = w.Rate()
	return p
}

func (m *Monitor) checkpointProgress(d *artifact.Dir, phase checkpoint.Phase) (int, int) {
	cp, err := checkpoint.NewStore(d.Path).Load(phase)
	if err != nil || cp == nil {
		return 0, 0
	}
	return cp.Count(), cp.Total
}

func (m *Monitor) remainingFromRules(d *artifact.Dir) (int, error) {
	snapshot, err := d.ReadMessages(artifact.AllMessagesFile)
	if err != nil {
		return 0, err
	}
	rules, err := d.ReadArchiveRules()
	if err != nil {
		return 0, err
	}
	shared, err := artifact.LoadSharedRules(m.config.SharedRules)
	if err != nil {
		return 0, err
	}
	return len(artifact.Remaining(snapshot.Messages, artifact.Combine(rules, shared))), nil
}

// Render draws one frame.
func (m *Monitor) Render(progress []*AccountProgress) string {
	s := m.styles
	b := &strings.Builder{}
	rule := s.rule.Render(strings.Repeat("─", ruleWidth))

	fmt.Fprintf(b, "  %s  |  %s  |  refresh: %s\n", s.title.Render("Inbox Triage Monitor"), m.now().Format("15:04:05"), m.config.Interval)
	fmt.Fprintln(b, rule)

	if len(progress) == 0 {
		fmt.Fprintln(b, "  No account data found. Run pass1 first.")
	}
	for _, p := range progress {
		fmt.Fprintf(b, "\n  %s\n", s.account.Render(p.Account))
		fmt.Fprintf(b, "  Phase: %s\n", s.phase.Render(p.Phase.Label()))

		switch p.Phase {
		case PhaseP1Fetch:
			if p.Target > 0 {
				fmt.Fprintf(b, "  %s\n", progressLine(p))
				fmt.Fprintf(b, "  Rate: %s  |  ETA: %s\n", rateString(p), p.ETA())
			} else {
				fmt.Fprintf(b, "  Fetched: %s messages\n", humanize.Comma(int64(p.Fetched)))
			}
		case PhaseP2Fetch:
			if p.Target > 0 {
				archived := 0
				if p.InboxTotal > 0 {
					archived = p.InboxTotal - p.Remaining
				}
				fmt.Fprintf(b, "  %s\n", progressLine(p))
				fmt.Fprintf(b, "  Rate: %s  |  ETA: %s  |  Auto-archived: %s\n", rateString(p), p.ETA(), humanize.Comma(int64(archived)))
			} else {
				fmt.Fprintf(b, "  Bodies fetched: %s\n", humanize.Comma(int64(p.Fetched)))
			}
		case PhaseP1Done, PhaseP2Pending:
			if p.InboxTotal > 0 {
				fmt.Fprintf(b, "  Inbox: %s messages\n", humanize.Comma(int64(p.InboxTotal)))
			}
		case PhaseP2Done:
			if p.Remaining > 0 {
				fmt.Fprintf(b, "  %s messages ready for classification\n", humanize.Comma(int64(p.Remaining)))
			}
		case PhaseDone:
			fmt.Fprintf(b, "  %s\n", s.done.Render("All passes complete"))
		}
	}

	fmt.Fprintf(b, "\n%s\n", rule)
	fmt.Fprintln(b, "  Ctrl+C to exit")
	return b.String()
}

func progressLine(p *AccountProgress) string {
	return fmt.Sprintf("%s %5.1f%%  (%s / %s)", ProgressBar(p.Fraction(), BarWidth), p.Fraction()*100,
		humanize.Comma(int64(p.Fetched)), humanize.Comma(int64(p.Target)))
}

func rateString(p *AccountProgress) string {
	if !p.HasRate {
		return NoRate
	}
	return fmt.Sprintf("%.0f/min", p.Rate*60)
}

// Tick polls and renders a single frame.
func (m *Monitor) Tick() error {
	progress, err := m.Poll()
	if err != nil {
		return err
	}
	frame := m.Render(progress)
	if m.config.ClearScreen {
		frame = clearScreen + frame
	}
	_, err = io.WriteString(m.out, frame)
	return err
}

// Run refreshes the dashboard every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.l.WithFields(logrus.Fields{"dir": m.config.OutputDir, "interval": m.config.Interval}).Debug("Starting monitor")
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		err := m.Tick()
		if err != nil {
			return fmt.Errorf("could not render progress: %w", err)
		}

		select {
		case <-ctx.Done():
			fmt.Fprintln(m.out, "\n  Monitor stopped.")
			return nil
		case <-ticker.C:
		}
	}
}
