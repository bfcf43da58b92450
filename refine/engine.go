// SPDX-License-Identifier: GPL-3.0-or-later
package refine

import (
	"sort"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/sirupsen/logrus"
)

const (
	PrefixWords      = 4
	EmptyPattern     = "(empty subject)"
	Uncategorised    = "uncategorised"
	BurstMinSize     = 5
	BurstWindow      = 24 * time.Hour
	BurstSimilarity  = 0.6
	NotificationDays = 7
	ReceiptDays      = 90
	SecurityDays     = 30
	NewsletterDays   = 14
	ReviewDays       = 365
)

// Policy decides which categories the heuristics may touch.
type Policy struct {
	// KeepCategories never expire and never take part in dedup.
	KeepCategories []domain.Category
	// ArchivableCategories take part in dedup. Empty means every category not
	// in KeepCategories. Unclassified records always take part. Time decay
	// only honours KeepCategories.
	ArchivableCategories []domain.Category
	// ArchiveCategory marks records the classifier already archives.
	ArchiveCategory domain.Category
}

func DefaultPolicy() Policy {
	return Policy{
		KeepCategories:       []domain.Category{domain.CategoryUrgent, domain.CategoryActionNeeded},
		ArchivableCategories: []domain.Category{domain.CategoryArchive, domain.CategoryReference},
		ArchiveCategory:      domain.CategoryArchive,
	}
}

type Engine struct {
	keep            map[domain.Category]bool
	archivable      map[domain.Category]bool
	archiveCategory domain.Category

	l *logrus.Logger
}

func NewEngine(policy Policy) *Engine {
	if policy.ArchiveCategory == "" {
		policy.ArchiveCategory = domain.CategoryArchive
	}
	e := &Engine{
		keep:            map[domain.Category]bool{},
		archivable:      map[domain.Category]bool{},
		archiveCategory: policy.ArchiveCategory,
		l:               log.Logger(log.LOG_REFINE),
	}
	for _, c := range policy.KeepCategories {
		e.keep[c] = true
	}
	for _, c := range policy.ArchivableCategories {
		e.archivable[c] = true
	}
	return e
}

// dedupEligible reports whether m may be archived as a burst duplicate.
func (e *Engine) dedupEligible(m *domain.ClassifiedMessage) bool {
	if e.keep[m.Category] {
		return false
	}
	return len(e.archivable) == 0 || m.Category == "" || e.archivable[m.Category]
}

// Analyse derives the archive and keep sets from classified records. It never
// touches the network and is deterministic for a given now.
func (e *Engine) Analyse(records []*domain.ClassifiedMessage, now time.Time) *AnalysisReport {
	alreadyArchive := []*domain.ClassifiedMessage{}
	remaining := []*domain.ClassifiedMessage{}
	for _, m := range records {
		if m.Category == e.archiveCategory {
			alreadyArchive = append(alreadyArchive, m)
		} else {
			remaining = append(remaining, m)
		}
	}

	report := &AnalysisReport{
		Generated:      now,
		TotalRemaining: len(records),
		SenderPatterns: senderPatterns(remaining),
	}

	decayIDs := e.timeDecay(remaining, now, &report.TimeDecay)
	report.Dedup = e.dedup(remaining)

	archive := map[domain.UID]bool{}
	for _, m := range alreadyArchive {
		archive[m.UID] = true
	}
	for uid := range decayIDs {
		archive[uid] = true
	}
	dedupIDs := map[domain.UID]bool{}
	for _, g := range report.Dedup.Groups {
		for _, uid := range g.ArchiveUIDs {
			dedupIDs[uid] = true
			archive[uid] = true
		}
	}

	keepByCategory := map[string]int{}
	report.ArchiveIDs = []domain.UID{}
	report.KeepIDs = []domain.UID{}
	seen := map[domain.UID]bool{}
	for _, m := range records {
		if seen[m.UID] {
			continue
		}
		seen[m.UID] = true
		if archive[m.UID] {
			report.ArchiveIDs = append(report.ArchiveIDs, m.UID)
			continue
		}
		report.KeepIDs = append(report.KeepIDs, m.UID)
		category := string(m.Category)
		if category == "" {
			category = Uncategorised
		}
		keepByCategory[category]++
	}
	sortUids(report.ArchiveIDs)
	sortUids(report.KeepIDs)

	report.Summary = Summary{
		AlreadyClassifiedArchive: len(alreadyArchive),
		TimeDecayArchive:         len(decayIDs),
		DedupArchive:             len(dedupIDs),
		FlaggedForReview12mo:     report.TimeDecay.OlderThan12mo,
		TotalWouldArchive:        len(report.ArchiveIDs),
		TotalWouldKeep:           len(report.KeepIDs),
		KeepByCategory:           keepByCategory,
	}

	e.l.WithFields(logrus.Fields{
		"records":    len(records),
		"classified": len(alreadyArchive),
		"decay":      len(decayIDs),
		"dedup":      len(dedupIDs),
		"review":     report.TimeDecay.OlderThan12mo,
		"archive":    len(report.ArchiveIDs),
		"keep":       len(report.KeepIDs),
	}).Info("Analysis complete")

	return report
}

func prefixKey(subject string) string {
	return mail.FirstNWords(mail.NormaliseSubject(subject), PrefixWords)
}

func senderPatterns(remaining []*domain.ClassifiedMessage) []SenderPattern {
	bySender, senders := groupBySender(remaining)

	patterns := make([]SenderPattern, 0, len(senders))
	for _, sender := range senders {
		msgs := bySender[sender]
		clusters := map[string]*Pattern{}
		order := []string{}
		for _, m := range msgs {
			key := prefixKey(m.Subject)
			c, ok := clusters[key]
			if !ok {
				label := key
				if label == "" {
					label = EmptyPattern
				}
				c = &Pattern{Pattern: label}
				clusters[key] = c
				order = append(order, key)
			}
			c.Count++
			if m.Date.IsZero() {
				continue
			}
			d := m.Date
			if c.Oldest == nil || d.Before(*c.Oldest) {
				c.Oldest = &d
			}
			if c.Newest == nil || d.After(*c.Newest) {
				c.Newest = &d
			}
		}

		sp := SenderPattern{Sender: sender, SenderName: msgs[0].SenderName, Total: len(msgs)}
		for _, key := range order {
			sp.Patterns = append(sp.Patterns, *clusters[key])
		}
		sort.SliceStable(sp.Patterns, func(i, j int) bool { return sp.Patterns[i].Count > sp.Patterns[j].Count })
		patterns = append(patterns, sp)
	}

	sort.SliceStable(patterns, func(i, j int) bool { return patterns[i].Total > patterns[j].Total })
	return patterns
}

// groupBySender returns messages per sender address and the senders in order
// of first appearance.
func groupBySender(msgs []*domain.ClassifiedMessage) (map[string][]*domain.ClassifiedMessage, []string) {
	bySender := map[string][]*domain.ClassifiedMessage{}
	senders := []string{}
	for _, m := range msgs {
		if _, ok := bySender[m.SenderEmail]; !ok {
			senders = append(senders, m.SenderEmail)
		}
		bySender[m.SenderEmail] = append(bySender[m.SenderEmail], m)
	}
	return bySender, senders
}

func daysOld(date, now time.Time) int {
	return int(now.Sub(date).Hours() / 24)
}

// timeDecay fills decay with the bucketed records and returns the ids that
// may be archived. The review bucket is not part of the result.
func (e *Engine) timeDecay(remaining []*domain.ClassifiedMessage, now time.Time, decay *TimeDecay) map[domain.UID]bool {
	ids := map[domain.UID]bool{}
	details := &decay.Details
	*details = TimeDecayDetails{
		Notifications: []DecayRef{},
		Receipts:      []DecayRef{},
		Security:      []DecayRef{},
		Newsletters:   []DecayRef{},
		Review:        []DecayRef{},
	}
	for _, m := range remaining {
		if e.keep[m.Category] || m.Date.IsZero() || isFinancial(m) {
			continue
		}

		days := daysOld(m.Date, now)
		ref := DecayRef{UID: m.UID, SenderEmail: m.SenderEmail, Subject: m.Subject, Date: m.Date, DaysOld: days}

		switch {
		case isNotificationLike(m) && days > NotificationDays:
			details.Notifications = append(details.Notifications, ref)
			ids[m.UID] = true
		case isReceiptLike(m) && days > ReceiptDays:
			details.Receipts = append(details.Receipts, ref)
			ids[m.UID] = true
		case isSecurityAlert(m) && days > SecurityDays:
			details.Security = append(details.Security, ref)
			ids[m.UID] = true
		case isNewsletterLike(m) && days > NewsletterDays:
			details.Newsletters = append(details.Newsletters, ref)
			ids[m.UID] = true
		}

		if days > ReviewDays {
			details.Review = append(details.Review, ref)
		}
	}

	decay.NotificationsOver7d = len(details.Notifications)
	decay.ReceiptsOver90d = len(details.Receipts)
	decay.SecurityOver30d = len(details.Security)
	decay.NewslettersOver14d = len(details.Newsletters)
	decay.OlderThan12mo = len(details.Review)
	return ids
}

// dedup finds bursts of similar messages per sender: at least BurstMinSize
// messages within BurstWindow of the first one, each sharing its prefix key or
// being similar enough to it. The newest message of a burst is kept. Only
// dedup-eligible records are considered, so keep categories never form or join
// a burst.
func (e *Engine) dedup(remaining []*domain.ClassifiedMessage) Dedup {
	candidates := []*domain.ClassifiedMessage{}
	for _, m := range remaining {
		if e.dedupEligible(m) && !m.Date.IsZero() {
			candidates = append(candidates, m)
		}
	}
	bySender, senders := groupBySender(candidates)

	result := Dedup{Groups: []BurstGroup{}}
	for _, sender := range senders {
		msgs := bySender[sender]
		if len(msgs) < BurstMinSize {
			continue
		}
		sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Date.Before(msgs[j].Date) })

		recorded := map[string][]map[domain.UID]bool{}
		for i := range msgs {
			first := msgs[i]
			subject := mail.NormaliseSubject(first.Subject)
			prefix := mail.FirstNWords(subject, PrefixWords)

			burst := []*domain.ClassifiedMessage{first}
			for _, next := range msgs[i+1:] {
				if next.Date.Sub(first.Date) > BurstWindow {
					break
				}
				other := mail.NormaliseSubject(next.Subject)
				if mail.FirstNWords(other, PrefixWords) == prefix || mail.Jaccard(subject, other) >= BurstSimilarity {
					burst = append(burst, next)
				}
			}
			if len(burst) < BurstMinSize {
				continue
			}

			key := sender + "|" + prefix
			if overlapsAny(burst, recorded[key]) {
				continue
			}
			members := map[domain.UID]bool{}
			for _, m := range burst {
				members[m.UID] = true
			}
			recorded[key] = append(recorded[key], members)

			keeper := burst[len(burst)-1]
			group := BurstGroup{
				GroupKey:     key,
				Sender:       sender,
				Pattern:      prefix,
				TotalInBurst: len(burst),
				KeepUID:      keeper.UID,
				ArchiveUIDs:  []domain.UID{},
			}
			for _, m := range burst[:len(burst)-1] {
				group.ArchiveUIDs = append(group.ArchiveUIDs, m.UID)
			}
			result.Groups = append(result.Groups, group)
			result.TotalDuplicates += len(group.ArchiveUIDs)
		}
	}
	result.BurstGroups = len(result.Groups)
	return result
}

func overlapsAny(burst []*domain.ClassifiedMessage, groups []map[domain.UID]bool) bool {
	for _, members := range groups {
		for _, m := range burst {
			if members[m.UID] {
				return true
			}
		}
	}
	return false
}

func sortUids(uids []domain.UID) {
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
}
