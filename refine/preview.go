// SPDX-License-Identifier: GPL-3.0-or-later
package refine

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
)

const previewTop = 10

// WritePreview prints a summary of report for approval before phase2-archive.
func WritePreview(w io.Writer, report *AnalysisReport) {
	s := report.Summary
	td := report.TimeDecay
	n := func(v int) string { return humanize.Comma(int64(v)) }

	fmt.Fprintf(w, "Phase 2 preview for %s (generated %s)\n\n", report.Account, humanize.Time(report.Generated))
	fmt.Fprintf(w, "  Remaining before phase 2:   %s\n", n(report.TotalRemaining))
	fmt.Fprintf(w, "  Already classified archive: %s\n", n(s.AlreadyClassifiedArchive))
	fmt.Fprintf(w, "  Time-decay archives:        %s\n", n(s.TimeDecayArchive))
	fmt.Fprintf(w, "    - Notifications >%dd:  %s\n", NotificationDays, n(td.NotificationsOver7d))
	fmt.Fprintf(w, "    - Receipts >%dd:      %s\n", ReceiptDays, n(td.ReceiptsOver90d))
	fmt.Fprintf(w, "    - Security >%dd:      %s\n", SecurityDays, n(td.SecurityOver30d))
	fmt.Fprintf(w, "    - Newsletters >%dd:   %s\n", NewsletterDays, n(td.NewslettersOver14d))
	fmt.Fprintf(w, "    - Older than 12mo:    %s\n", n(td.OlderThan12mo))
	fmt.Fprintf(w, "  Dedup archives:             %s\n", n(s.DedupArchive))
	fmt.Fprintf(w, "    - Burst groups:       %s\n", n(report.Dedup.BurstGroups))
	if s.FlaggedForReview12mo > 0 {
		fmt.Fprintf(w, "  Flagged for review (>12mo): %s (not archived)\n", n(s.FlaggedForReview12mo))
	}
	fmt.Fprintf(w, "  Would archive: %s\n", n(s.TotalWouldArchive))
	fmt.Fprintf(w, "  Would keep:    %s\n", n(s.TotalWouldKeep))

	if len(report.SenderPatterns) > 0 {
		fmt.Fprintf(w, "\n  Top senders in remaining set:\n")
		for i, sp := range report.SenderPatterns {
			if i == previewTop {
				break
			}
			top := "-"
			if len(sp.Patterns) > 0 {
				top = sp.Patterns[0].Pattern
			}
			fmt.Fprintf(w, "    %2d. %-40s (%3d) %q\n", i+1, sp.Sender, sp.Total, top)
		}
	}

	if len(report.Dedup.Groups) > 0 {
		fmt.Fprintf(w, "\n  Dedup burst groups (%d):\n", report.Dedup.BurstGroups)
		for i, g := range report.Dedup.Groups {
			if i == previewTop {
				break
			}
			fmt.Fprintf(w, "    - %s: %q %d msgs, archive %d\n", g.Sender, g.Pattern, g.TotalInBurst, len(g.ArchiveUIDs))
		}
	}

	if len(s.KeepByCategory) > 0 {
		categories := make([]string, 0, len(s.KeepByCategory))
		for c := range s.KeepByCategory {
			categories = append(categories, c)
		}
		sort.Slice(categories, func(i, j int) bool {
			ci, cj := s.KeepByCategory[categories[i]], s.KeepByCategory[categories[j]]
			if ci != cj {
				return ci > cj
			}
			return categories[i] < categories[j]
		})
		fmt.Fprintf(w, "\n  Kept by category:\n")
		for _, c := range categories {
			fmt.Fprintf(w, "    - %s: %s\n", c, n(s.KeepByCategory[c]))
		}
	}

	fmt.Fprintf(w, "\n  Run 'phase2-archive --account %s' for a dry run\n", report.Account)
	fmt.Fprintf(w, "  Run 'phase2-archive --account %s --execute' to archive\n", report.Account)
}
