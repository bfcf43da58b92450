// SPDX-License-Identifier: GPL-3.0-or-later
package triage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/CrawX/go-imap-triage/archiver"
	"github.com/CrawX/go-imap-triage/artifact"
	"github.com/CrawX/go-imap-triage/checkpoint"
	"github.com/CrawX/go-imap-triage/classifier"
	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/fetcher"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/refine"

	"github.com/sirupsen/logrus"
)

var (
	ErrNoConnection = errors.New("this step needs an imap connection")
	ErrNoClassifier = errors.New("no classifier configured, set RuleFile in the config")
	// ErrUidValidityChanged means the UIDs of earlier artifacts no longer
	// address the same messages.
	ErrUidValidityChanged = errors.New("INBOX UIDVALIDITY changed since pass1, run pass1 again")
)

// Triage runs the steps of one account. Steps that only read and write
// artifacts work without a connection.
type Triage struct {
	conn       domain.ImapConnector
	ledger     domain.ArchiveLedger
	classifier domain.Classifier
	dir        *artifact.Dir

	configuration *configuration

	l *logrus.Logger
}

// NewTriage creates the runner for the account owning dir. conn, ledger and
// classifier may be nil when the called steps do not need them.
func NewTriage(conn domain.ImapConnector, ledger domain.ArchiveLedger, cl domain.Classifier, dir *artifact.Dir, configFunc ...ConfigFunc) (*Triage, error) {
	config := defaultConfiguration()
	for _, f := range configFunc {
		err := f(config)
		if err != nil {
			return nil, fmt.Errorf("error applying configuration: %w", err)
		}
	}
	config.Archiver.Account = dir.Account

	return &Triage{
		conn:          conn,
		ledger:        ledger,
		classifier:    cl,
		dir:           dir,
		configuration: config,
		l:             log.Logger(log.LOG_TRIAGE),
	}, nil
}

func (t *Triage) logger() *logrus.Entry {
	return t.l.WithField("account", t.dir.Account)
}

func (t *Triage) sharedRules() (*artifact.Rules, error) {
	rules, err := artifact.LoadSharedRules(t.configuration.SharedRules)
	if err != nil {
		return nil, fmt.Errorf("could not load shared rules: %w", err)
	}
	return rules, nil
}

func (t *Triage) fetcher(phase checkpoint.Phase) (*fetcher.Fetcher, error) {
	if t.conn == nil {
		return nil, ErrNoConnection
	}
	err := t.dir.Ensure()
	if err != nil {
		return nil, err
	}

	store := checkpoint.NewStore(t.dir.Path)
	if t.configuration.Fresh {
		err = store.Clear(phase)
		if err != nil {
			return nil, err
		}
	}
	return fetcher.NewFetcher(t.conn, store, t.configuration.Fetcher), nil
}

// Pass1 scans the metadata of INBOX and writes the sender report, the
// summary and the message list.
func (t *Triage) Pass1(ctx context.Context) (*artifact.Summary, error) {
	f, err := t.fetcher(checkpoint.Metadata)
	if err != nil {
		return nil, err
	}

	messages, err := f.FetchMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not fetch metadata: %w", err)
	}

	shared, err := t.sharedRules()
	if err != nil {
		return nil, err
	}
	stats, summary := artifact.SenderReport(messages, shared)

	err = t.dir.WriteSenderReport(stats)
	if err != nil {
		return nil, fmt.Errorf("could not write sender report: %w", err)
	}
	err = t.dir.WriteSummary(summary)
	if err != nil {
		return nil, fmt.Errorf("could not write summary: %w", err)
	}
	err = t.dir.WriteMessages(artifact.AllMessagesFile, &artifact.MessageSnapshot{
		Account:     t.dir.Account,
		UidValidity: f.UidValidity(),
		Generated:   t.configuration.Now().UTC(),
		Messages:    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("could not write message list: %w", err)
	}

	t.logger().WithFields(logrus.Fields{
		"messages": summary.TotalMessages,
		"unread":   summary.TotalUnread,
		"senders":  summary.UniqueSenders,
		"10plus":   summary.SendersWith10Plus,
		"50plus":   summary.SendersWith50Plus,
		"shared":   summary.SharedRulesAutoArchived,
	}).Info("Pass 1 complete")
	return summary, nil
}

// Pass2 fetches body previews of the messages the archive rules leave in
// INBOX and writes them to pass2_remaining.json.
func (t *Triage) Pass2(ctx context.Context) (*artifact.MessageSnapshot, error) {
	err := t.dir.Require(artifact.ArchiveRulesFile, artifact.AllMessagesFile)
	if err != nil {
		return nil, err
	}
	rules, err := t.dir.ReadArchiveRules()
	if err != nil {
		return nil, err
	}
	all, err := t.dir.ReadMessages(artifact.AllMessagesFile)
	if err != nil {
		return nil, err
	}
	shared, err := t.sharedRules()
	if err != nil {
		return nil, err
	}

	f, err := t.fetcher(checkpoint.Bodies)
	if err != nil {
		return nil, err
	}
	err = t.checkUidValidity(all.UidValidity)
	if err != nil {
		return nil, err
	}

	combined := artifact.Combine(rules, shared)
	remaining := artifact.Remaining(all.Messages, combined)
	uids := make([]domain.UID, 0, len(remaining))
	for _, m := range remaining {
		uids = append(uids, m.UID)
	}
	t.logger().WithFields(logrus.Fields{"senders": len(combined.ArchiveSenders), "domains": len(combined.ArchiveDomains), "remaining": len(remaining)}).Info("Fetching bodies of remaining messages")

	bodies, err := f.FetchBodies(ctx, uids)
	if err != nil {
		return nil, fmt.Errorf("could not fetch bodies: %w", err)
	}

	snapshot := &artifact.MessageSnapshot{
		Account:     t.dir.Account,
		UidValidity: f.UidValidity(),
		Generated:   t.configuration.Now().UTC(),
		Messages:    make([]*domain.MessageRecord, 0, len(remaining)),
	}
	for _, m := range remaining {
		r := *m
		r.BodyPreview = bodies[m.UID]
		snapshot.Messages = append(snapshot.Messages, &r)
	}
	err = t.dir.WriteMessages(artifact.RemainingFile, snapshot)
	if err != nil {
		return nil, fmt.Errorf("could not write remaining messages: %w", err)
	}

	t.logger().WithFields(logrus.Fields{"remaining": len(snapshot.Messages), "bodies": len(bodies)}).Info("Pass 2 complete")
	return snapshot, nil
}

func (t *Triage) checkUidValidity(expected uint32) error {
	if expected == 0 {
		return nil
	}
	status, err := t.conn.Status(fetcher.Inbox)
	if err != nil {
		return fmt.Errorf("could not read %s status: %w", fetcher.Inbox, err)
	}
	if status.UidValidity != expected {
		t.logger().WithFields(logrus.Fields{"expected": expected, "current": status.UidValidity}).Error("UIDVALIDITY changed")
		return ErrUidValidityChanged
	}
	return nil
}

// Classify runs the configured classifier over pass2_remaining.json.
func (t *Triage) Classify() (*artifact.Classifications, error) {
	if t.classifier == nil {
		return nil, ErrNoClassifier
	}
	remaining, err := t.dir.ReadMessages(artifact.RemainingFile)
	if err != nil {
		return nil, err
	}

	cc := &classifier.ConcurrentClassifier{Classifier: t.classifier}
	result := &artifact.Classifications{
		Account:     t.dir.Account,
		UidValidity: remaining.UidValidity,
		Generated:   t.configuration.Now().UTC(),
		Messages:    cc.ClassifyAll(remaining.Messages, t.configuration.ClassifyConcurrency),
	}

	err = t.dir.WriteClassifications(result)
	if err != nil {
		return nil, fmt.Errorf("could not write classifications: %w", err)
	}

	counts := map[string]int{}
	for _, m := range result.Messages {
		category := string(m.Category)
		if category == "" {
			category = refine.Uncategorised
		}
		counts[category]++
	}
	t.logger().WithFields(logrus.Fields{"messages": len(result.Messages), "categories": counts}).Info("Classification complete")
	return result, nil
}

// Archive removes every message of the rule senders and of the senders
// classified as archive from INBOX.
func (t *Triage) Archive(ctx context.Context) (*archiver.Result, error) {
	rules, err := t.dir.ReadArchiveRules()
	if err != nil {
		return nil, err
	}
	shared, err := t.sharedRules()
	if err != nil {
		return nil, err
	}

	classified := &artifact.Rules{}
	if t.dir.Exists(artifact.ClassificationFile) {
		c, err := t.dir.ReadClassifications()
		if err != nil {
			return nil, err
		}
		for _, m := range c.Messages {
			if m.Category == t.configuration.Policy.ArchiveCategory {
				classified.ArchiveSenders = append(classified.ArchiveSenders, m.SenderEmail)
			}
		}
	}

	senders := artifact.Senders(rules, shared, classified)
	domains := artifact.Domains(rules, shared)
	t.logger().WithFields(logrus.Fields{"senders": len(senders), "domains": len(domains)}).Info("Archiving by sender")
	return t.archive(ctx, archiver.SenderTarget(senders, domains))
}

func (t *Triage) archive(ctx context.Context, target *archiver.Target) (*archiver.Result, error) {
	if t.conn == nil {
		return nil, ErrNoConnection
	}
	a := archiver.NewArchiver(t.conn, t.ledger, t.configuration.Archiver)
	result, err := a.ResolveAndArchive(ctx, target, !t.configuration.Execute)
	if result != nil && result.DryRun {
		t.logger().WithField("matched", len(result.Matched)).Info("Dry run, pass --execute to archive")
	}
	return result, err
}

// Phase2Analyse derives the archive and keep sets from the classification.
// It needs no connection.
func (t *Triage) Phase2Analyse() (*refine.AnalysisReport, error) {
	c, err := t.dir.ReadClassifications()
	if err != nil {
		return nil, err
	}

	report := refine.NewEngine(t.configuration.Policy).Analyse(c.Messages, t.configuration.Now().UTC())
	report.Account = t.dir.Account
	report.UidValidity = c.UidValidity

	err = t.dir.WriteAnalysis(report)
	if err != nil {
		return nil, fmt.Errorf("could not write analysis: %w", err)
	}
	return report, nil
}

func (t *Triage) Phase2Preview(w io.Writer) error {
	report, err := t.dir.ReadAnalysis()
	if err != nil {
		return err
	}
	refine.WritePreview(w, report)
	return nil
}

// Phase2Archive archives the messages of the analysis archive set. Messages
// are matched by UID while UIDVALIDITY is unchanged, by sender and subject
// otherwise.
func (t *Triage) Phase2Archive(ctx context.Context) (*archiver.Result, error) {
	report, err := t.dir.ReadAnalysis()
	if err != nil {
		return nil, err
	}
	c, err := t.dir.ReadClassifications()
	if err != nil {
		return nil, err
	}

	byUid := make(map[domain.UID]*domain.ClassifiedMessage, len(c.Messages))
	for _, m := range c.Messages {
		byUid[m.UID] = m
	}
	identities := func(uids []domain.UID) []archiver.Identity {
		ids := make([]archiver.Identity, 0, len(uids))
		for _, uid := range uids {
			m, ok := byUid[uid]
			if !ok {
				t.logger().WithField("uid", uid).Warn("Analysed message missing from classification, skipping")
				continue
			}
			ids = append(ids, archiver.Identity{UID: uid, SenderEmail: m.SenderEmail, Subject: m.Subject})
		}
		return ids
	}

	target := archiver.IdentityTarget(identities(report.ArchiveIDs), identities(report.KeepIDs), report.UidValidity)
	if target.Empty() {
		t.logger().Info("Analysis archives nothing")
		return &archiver.Result{DryRun: !t.configuration.Execute, Matched: []*domain.MessageRecord{}}, nil
	}
	t.logger().WithFields(logrus.Fields{"archive": len(report.ArchiveIDs), "keep": len(report.KeepIDs)}).Info("Archiving analysed messages")
	return t.archive(ctx, target)
}

type Status struct {
	Account       string
	InboxTotal    uint32
	InboxUnread   uint32
	Pass1Done     bool
	RulesCreated  bool
	Pass2Done     bool
	Classified    bool
	Analysed      bool
	LastRun       *domain.ArchiveRun
	ArchivedTotal int
}

// Status reads the INBOX counters and the progress recorded in the artifacts
// and the ledger.
func (t *Triage) Status() (*Status, error) {
	if t.conn == nil {
		return nil, ErrNoConnection
	}
	inbox, err := t.conn.Status(fetcher.Inbox)
	if err != nil {
		return nil, fmt.Errorf("could not read %s status: %w", fetcher.Inbox, err)
	}

	s := &Status{
		Account:      t.dir.Account,
		InboxTotal:   inbox.Messages,
		InboxUnread:  inbox.Unseen,
		Pass1Done:    t.dir.Exists(artifact.Pass1SummaryFile),
		RulesCreated: t.dir.Exists(artifact.ArchiveRulesFile),
		Pass2Done:    t.dir.Exists(artifact.RemainingFile),
		Classified:   t.dir.Exists(artifact.ClassificationFile),
		Analysed:     t.dir.Exists(artifact.AnalysisFile),
	}

	if t.ledger != nil {
		runs, err := t.ledger.Runs(t.dir.Account)
		if err != nil {
			return nil, fmt.Errorf("could not read archive runs: %w", err)
		}
		for _, r := range runs {
			s.ArchivedTotal += r.Flagged
			if s.LastRun == nil || r.StartedAt.After(s.LastRun.StartedAt) {
				s.LastRun = r
			}
		}
	}
	return s, nil
}

// History lists the messages an archive run removed from INBOX.
func (t *Triage) History(runId string) ([]domain.ArchivedMail, error) {
	if t.ledger == nil {
		return nil, errors.New("no archive ledger configured")
	}
	mails, err := t.ledger.ArchivedMails(runId)
	if err != nil {
		return nil, fmt.Errorf("could not read archived mails of run %s: %w", runId, err)
	}
	return mails, nil
}

// MergeRules promotes senders archived by at least two accounts below
// outputDir into the shared rule file.
func MergeRules(outputDir, sharedPath string) ([]artifact.Promotion, error) {
	l := log.Logger(log.LOG_TRIAGE)

	dirs, err := artifact.Accounts(outputDir)
	if err != nil {
		return nil, err
	}
	accountRules := map[string]*artifact.Rules{}
	for _, d := range dirs {
		if !d.Exists(artifact.ArchiveRulesFile) {
			continue
		}
		rules, err := d.ReadArchiveRules()
		if err != nil {
			return nil, err
		}
		accountRules[d.Account] = rules
	}

	shared, err := artifact.LoadSharedRules(sharedPath)
	if err != nil {
		return nil, fmt.Errorf("could not load shared rules: %w", err)
	}
	promotions := artifact.MergeRules(accountRules, shared)
	if len(promotions) == 0 {
		l.WithField("accounts", len(accountRules)).Info("No new cross-account senders found")
		return promotions, nil
	}

	err = artifact.SaveSharedRules(sharedPath, shared)
	if err != nil {
		return nil, fmt.Errorf("could not save shared rules: %w", err)
	}
	for _, p := range promotions {
		l.WithFields(logrus.Fields{"sender": p.Sender, "accounts": p.Accounts}).Info("Promoted to shared rules")
	}
	return promotions, nil
}
