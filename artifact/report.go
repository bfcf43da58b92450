// SPDX-License-Identifier: GPL-3.0-or-later
package artifact

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/CrawX/go-imap-triage/checkpoint"
	"github.com/CrawX/go-imap-triage/domain"
)

const (
	sampleSubjects = 3
	topSenders     = 20
)

type SenderStat struct {
	Email      string
	Name       string
	Total      int
	Unread     int
	SharedRule bool
	Subjects   []string
}

type TopSender struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Unread int    `json:"unread"`
}

// Summary is the content of pass1_summary.json.
type Summary struct {
	TotalMessages           int         `json:"total_messages"`
	TotalUnread             int         `json:"total_unread"`
	UniqueSenders           int         `json:"unique_senders"`
	TopSenders              []TopSender `json:"top_20_senders"`
	SendersWith10Plus       int         `json:"senders_with_10_plus"`
	SendersWith50Plus       int         `json:"senders_with_50_plus"`
	SharedRulesAutoArchived int         `json:"shared_rules_auto_archived"`
}

// SenderReport groups messages by sender, most frequent first. Senders with
// the same count keep the order of their first message.
func SenderReport(messages []*domain.MessageRecord, shared *Rules) ([]*SenderStat, *Summary) {
	if shared == nil {
		shared = &Rules{}
	}

	bySender := map[string]*SenderStat{}
	stats := []*SenderStat{}
	summary := &Summary{TotalMessages: len(messages), TopSenders: []TopSender{}}
	for _, m := range messages {
		s, ok := bySender[m.SenderEmail]
		if !ok {
			s = &SenderStat{Email: m.SenderEmail, Name: m.SenderName, SharedRule: shared.Matches(m.SenderEmail)}
			bySender[m.SenderEmail] = s
			stats = append(stats, s)
		}
		s.Total++
		if m.Unread {
			s.Unread++
			summary.TotalUnread++
		}
		if len(s.Subjects) < sampleSubjects {
			s.Subjects = append(s.Subjects, m.Subject)
		}
		if s.SharedRule {
			summary.SharedRulesAutoArchived++
		}
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].Total > stats[j].Total })

	summary.UniqueSenders = len(stats)
	for i, s := range stats {
		if i < topSenders {
			summary.TopSenders = append(summary.TopSenders, TopSender{Email: s.Email, Name: s.Name, Count: s.Total, Unread: s.Unread})
		}
		if s.Total >= 10 {
			summary.SendersWith10Plus++
		}
		if s.Total >= 50 {
			summary.SendersWith50Plus++
		}
	}
	return stats, summary
}

func (d *Dir) WriteSenderReport(stats []*SenderStat) error {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	rows := [][]string{{"email", "name", "total", "unread", "shared_rule", "sample_subjects"}}
	for _, s := range stats {
		shared := ""
		if s.SharedRule {
			shared = "YES"
		}
		rows = append(rows, []string{
			s.Email,
			s.Name,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Unread),
			shared,
			strings.Join(s.Subjects, " | "),
		})
	}
	err := w.WriteAll(rows)
	if err != nil {
		return fmt.Errorf("could not encode sender report: %w", err)
	}
	return checkpoint.WriteAtomic(d.File(SenderReportFile), buf.Bytes())
}
