// SPDX-License-Identifier: GPL-3.0-or-later
package triage

import (
	"bytes"
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CrawX/go-imap-triage/artifact"
	"github.com/CrawX/go-imap-triage/checkpoint"
	"github.com/CrawX/go-imap-triage/classifier"
	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/imaptest"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/persistence"
	"github.com/stretchr/testify/assert"
)

var (
	start = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	now   = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
)

type fixture struct {
	server *imaptest.Server
	base   string
	shared string
	dir    *artifact.Dir
}

func newFixture(t *testing.T) *fixture {
	log.InitLogging("error")

	base, err := ioutil.TempDir("", "triage")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(base) })

	s := imaptest.NewServer()
	s.AddFolder("Archive")
	messages := []imaptest.Message{
		{From: "deals@shop.example", Subject: "Sale today"},
		{From: "friend@example.com", Subject: "Dinner?", Body: "see you at eight"},
		{From: "deals@shop.example", Subject: "Sale tomorrow"},
		{From: "news@lists.example.org", Subject: "Weekly digest"},
		{From: "boss@work.example", Subject: "Quarterly review", Seen: true, Body: "please prepare slides"},
		{From: "friend@example.com", Subject: "Photos", Body: "from the trip"},
	}
	for i, m := range messages {
		m.Date = start.Add(time.Duration(i) * time.Hour)
		s.Deliver(m)
	}

	f := &fixture{
		server: s,
		base:   base,
		shared: filepath.Join(base, artifact.SharedRulesFile),
		dir:    artifact.NewDir(filepath.Join(base, "out"), "personal"),
	}
	assert.NoError(t, artifact.SaveSharedRules(f.shared, &artifact.Rules{ArchiveDomains: []string{"lists.example.org"}}))
	return f
}

func (f *fixture) triage(t *testing.T, ledger domain.ArchiveLedger, cl domain.Classifier, opts ...ConfigFunc) *Triage {
	opts = append([]ConfigFunc{SharedRules(f.shared), Clock(func() time.Time { return now })}, opts...)
	tr, err := NewTriage(f.server, ledger, cl, f.dir, opts...)
	assert.NoError(t, err)
	return tr
}

func (f *fixture) writeRules(t *testing.T, senders ...string) {
	assert.NoError(t, f.dir.Ensure())
	assert.NoError(t, f.dir.WriteArchiveRules(&artifact.Rules{ArchiveSenders: senders}))
}

func (f *fixture) inboxSubjects() []string {
	subjects := []string{}
	for _, m := range f.server.Messages(imaptest.Inbox) {
		subjects = append(subjects, m.Subject)
	}
	return subjects
}

func (f *fixture) countCalls(prefix string) int {
	n := 0
	for _, c := range f.server.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func classified(uid domain.UID, sender, subject string, hour int, category domain.Category) *domain.ClassifiedMessage {
	return &domain.ClassifiedMessage{
		MessageRecord: domain.MessageRecord{UID: uid, SenderEmail: sender, Subject: subject, Date: start.Add(time.Duration(hour) * time.Hour)},
		Category:      category,
	}
}

func (f *fixture) writeClassifications(t *testing.T, uidValidity uint32) {
	assert.NoError(t, f.dir.Ensure())
	assert.NoError(t, f.dir.WriteClassifications(&artifact.Classifications{
		Account:     "personal",
		UidValidity: uidValidity,
		Messages: []*domain.ClassifiedMessage{
			classified(2, "friend@example.com", "Dinner?", 1, domain.CategoryReference),
			classified(4, "news@lists.example.org", "Weekly digest", 3, domain.CategoryReference),
			classified(5, "boss@work.example", "Quarterly review", 4, domain.CategoryUrgent),
			classified(6, "friend@example.com", "Photos", 5, domain.CategoryArchive),
		},
	}))
}

func TestNewTriage(t *testing.T) {
	dir := artifact.NewDir("out", "a")
	tests := []struct {
		name string
		cfgs []ConfigFunc
		err  string
	}{
		{"ok", []ConfigFunc{Execute(), Fresh()}, ""},
		{"shared", []ConfigFunc{SharedRules("")}, "error applying configuration: SharedRules path cannot be empty"},
		{"concurrency", []ConfigFunc{ClassifyConcurrency(0)}, "error applying configuration: ClassifyConcurrency must be at least 1"},
		{"clock", []ConfigFunc{Clock(nil)}, "error applying configuration: Clock cannot be nil"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := NewTriage(nil, nil, nil, dir, tc.cfgs...)
			if len(tc.err) == 0 {
				assert.NotNil(t, tr)
				assert.NoError(t, err)
				assert.Equal(t, "a", tr.configuration.Archiver.Account)
			} else {
				assert.Nil(t, tr)
				assert.EqualError(t, err, tc.err)
			}
		})
	}
}

func TestPass1(t *testing.T) {
	f := newFixture(t)
	tr := f.triage(t, nil, nil)

	summary, err := tr.Pass1(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 6, summary.TotalMessages)
	assert.Equal(t, 5, summary.TotalUnread)
	assert.Equal(t, 4, summary.UniqueSenders)
	assert.Equal(t, 1, summary.SharedRulesAutoArchived)
	assert.Equal(t, artifact.TopSender{Email: "deals@shop.example", Count: 2, Unread: 2}, summary.TopSenders[0])

	for _, name := range []string{artifact.SenderReportFile, artifact.Pass1SummaryFile, artifact.AllMessagesFile, checkpoint.FileName(checkpoint.Metadata)} {
		assert.True(t, f.dir.Exists(name), name)
	}

	all, err := f.dir.ReadMessages(artifact.AllMessagesFile)
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), all.UidValidity)
	assert.Len(t, all.Messages, 6)
	assert.Equal(t, "Quarterly review", all.Messages[4].Subject)
	assert.False(t, all.Messages[4].Unread)

	report, err := ioutil.ReadFile(f.dir.File(artifact.SenderReportFile))
	assert.NoError(t, err)
	assert.Contains(t, string(report), "news@lists.example.org,,1,1,YES,Weekly digest")
}

func TestPass1_Resumes(t *testing.T) {
	f := newFixture(t)

	_, err := f.triage(t, nil, nil).Pass1(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, f.countCalls("fetch headers"))

	f.server.SetSeen(1, true)
	summary, err := f.triage(t, nil, nil).Pass1(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, f.countCalls("fetch headers"), "second run is served from the checkpoint")
	assert.Equal(t, 4, summary.TotalUnread, "unread state is refreshed from the server")

	_, err = f.triage(t, nil, nil, Fresh()).Pass1(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, f.countCalls("fetch headers"))
}

func TestPass1_NoConnection(t *testing.T) {
	f := newFixture(t)
	tr, err := NewTriage(nil, nil, nil, f.dir)
	assert.NoError(t, err)

	_, err = tr.Pass1(context.Background())
	assert.Equal(t, ErrNoConnection, err)
}

func TestPass2_RequiresArtifacts(t *testing.T) {
	f := newFixture(t)
	tr := f.triage(t, nil, nil)

	_, err := tr.Pass2(context.Background())
	var missing *artifact.MissingError
	assert.True(t, errors.As(err, &missing))
	assert.Equal(t, f.dir.File(artifact.ArchiveRulesFile), missing.Path)

	f.writeRules(t, "deals@shop.example")
	_, err = tr.Pass2(context.Background())
	assert.True(t, errors.As(err, &missing))
	assert.Equal(t, "pass1", missing.Step)
	assert.Empty(t, f.server.Calls)
}

func TestPass2(t *testing.T) {
	f := newFixture(t)
	tr := f.triage(t, nil, nil)
	_, err := tr.Pass1(context.Background())
	assert.NoError(t, err)
	f.writeRules(t, "Deals@Shop.example")

	snapshot, err := tr.Pass2(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), snapshot.UidValidity)

	uids := []domain.UID{}
	previews := map[domain.UID]string{}
	for _, m := range snapshot.Messages {
		uids = append(uids, m.UID)
		previews[m.UID] = m.BodyPreview
	}
	assert.Equal(t, []domain.UID{2, 5, 6}, uids)
	assert.Equal(t, "see you at eight", previews[2])
	assert.Equal(t, "please prepare slides", previews[5])

	read, err := f.dir.ReadMessages(artifact.RemainingFile)
	assert.NoError(t, err)
	assert.Len(t, read.Messages, 3)
	assert.True(t, f.dir.Exists(checkpoint.FileName(checkpoint.Bodies)))
}

func TestPass2_UidValidityChanged(t *testing.T) {
	f := newFixture(t)
	tr := f.triage(t, nil, nil)
	_, err := tr.Pass1(context.Background())
	assert.NoError(t, err)
	f.writeRules(t, "deals@shop.example")
	f.server.SetUidValidity(imaptest.Inbox, 2)

	_, err = tr.Pass2(context.Background())
	assert.Equal(t, ErrUidValidityChanged, err)
	assert.False(t, f.dir.Exists(artifact.RemainingFile))
	assert.Equal(t, 0, f.countCalls("fetch bodies"))
}

func testClassifier(t *testing.T) domain.Classifier {
	rc, err := classifier.NewRulesClassifier(&classifier.RuleSet{
		DefaultCategory: domain.CategoryArchive,
		DefaultReason:   classifier.DefaultReason,
		Rules: []classifier.Rule{
			{Name: "work", Category: domain.CategoryUrgent, Domains: []string{"work.example"}},
			{Name: "dinner", Category: domain.CategoryReference, SubjectKeywords: []string{"dinner"}},
		},
	})
	assert.NoError(t, err)
	return rc
}

func TestClassify(t *testing.T) {
	f := newFixture(t)
	tr := f.triage(t, nil, testClassifier(t), ClassifyConcurrency(2))
	_, err := tr.Pass1(context.Background())
	assert.NoError(t, err)
	f.writeRules(t, "deals@shop.example")
	_, err = tr.Pass2(context.Background())
	assert.NoError(t, err)

	c, err := tr.Classify()
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), c.UidValidity)

	categories := map[domain.UID]domain.Category{}
	for _, m := range c.Messages {
		categories[m.UID] = m.Category
	}
	assert.Equal(t, map[domain.UID]domain.Category{
		2: domain.CategoryReference,
		5: domain.CategoryUrgent,
		6: domain.CategoryArchive,
	}, categories)
	assert.True(t, f.dir.Exists(artifact.ClassificationFile))
}

func TestClassify_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.triage(t, nil, nil).Classify()
	assert.Equal(t, ErrNoClassifier, err)

	_, err = f.triage(t, nil, testClassifier(t)).Classify()
	var missing *artifact.MissingError
	assert.True(t, errors.As(err, &missing))
	assert.Equal(t, "pass2", missing.Step)
}

func TestArchive_DryRun(t *testing.T) {
	f := newFixture(t)
	f.writeRules(t, "deals@shop.example")
	f.writeClassifications(t, 1)

	result, err := f.triage(t, nil, nil).Archive(context.Background())
	assert.NoError(t, err)
	assert.True(t, result.DryRun)

	uids := []domain.UID{}
	for _, m := range result.Matched {
		uids = append(uids, m.UID)
	}
	// rule senders, the shared domain and the sender classified as archive
	assert.Equal(t, []domain.UID{1, 2, 3, 4, 6}, uids)
	assert.Len(t, f.server.Messages(imaptest.Inbox), 6)
	assert.Equal(t, 0, f.countCalls("store"))
}

func testLedger(t *testing.T, f *fixture) *persistence.Persistence {
	p, err := persistence.NewPersistence(filepath.Join(f.base, artifact.LedgerFile))
	assert.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestArchive_Execute(t *testing.T) {
	f := newFixture(t)
	f.writeRules(t, "deals@shop.example")
	ledger := testLedger(t, f)
	tr := f.triage(t, ledger, nil, Execute())

	result, err := tr.Archive(context.Background())
	assert.NoError(t, err)
	assert.False(t, result.DryRun)
	assert.Equal(t, 3, result.Flagged)
	assert.Equal(t, "folder", result.Backend)
	assert.Equal(t, "Archive", result.HoldingFolder)
	assert.Nil(t, result.Warning)

	assert.Equal(t, []string{"Dinner?", "Quarterly review", "Photos"}, f.inboxSubjects())
	assert.Len(t, f.server.Messages("Archive"), 3)

	status, err := tr.Status()
	assert.NoError(t, err)
	assert.Equal(t, uint32(3), status.InboxTotal)
	assert.Equal(t, uint32(2), status.InboxUnread)
	assert.Equal(t, 3, status.ArchivedTotal)
	assert.NotNil(t, status.LastRun)
	assert.Equal(t, result.RunId, status.LastRun.Id)
	assert.True(t, status.RulesCreated)
	assert.False(t, status.Pass1Done)

	mails, err := tr.History(result.RunId)
	assert.NoError(t, err)
	assert.Len(t, mails, 3)
}

func TestPhase2(t *testing.T) {
	f := newFixture(t)
	f.writeClassifications(t, 1)
	tr := f.triage(t, nil, nil)

	report, err := tr.Phase2Analyse()
	assert.NoError(t, err)
	assert.Equal(t, "personal", report.Account)
	assert.Equal(t, uint32(1), report.UidValidity)
	assert.Equal(t, []domain.UID{4, 6}, report.ArchiveIDs)
	assert.Equal(t, []domain.UID{2, 5}, report.KeepIDs)
	assert.Equal(t, 1, report.Summary.TimeDecayArchive)
	assert.True(t, f.dir.Exists(artifact.AnalysisFile))

	out := &bytes.Buffer{}
	assert.NoError(t, tr.Phase2Preview(out))
	assert.Contains(t, out.String(), "Phase 2 preview for personal")
	assert.Contains(t, out.String(), "Would archive: 2")

	result, err := tr.Phase2Archive(context.Background())
	assert.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Len(t, result.Matched, 2)
	assert.Len(t, f.server.Messages(imaptest.Inbox), 6)

	result, err = f.triage(t, nil, nil, Execute()).Phase2Archive(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, result.Flagged)
	assert.Equal(t, []string{"Sale today", "Dinner?", "Sale tomorrow", "Quarterly review"}, f.inboxSubjects())
}

func TestPhase2Archive_UidValidityChanged(t *testing.T) {
	f := newFixture(t)
	f.writeClassifications(t, 1)
	_, err := f.triage(t, nil, nil).Phase2Analyse()
	assert.NoError(t, err)
	f.server.SetUidValidity(imaptest.Inbox, 7)

	result, err := f.triage(t, nil, nil).Phase2Archive(context.Background())
	assert.NoError(t, err)
	subjects := []string{}
	for _, m := range result.Matched {
		subjects = append(subjects, m.Subject)
	}
	assert.Equal(t, []string{"Weekly digest", "Photos"}, subjects)
}

func TestPhase2_RequiresArtifacts(t *testing.T) {
	f := newFixture(t)
	tr := f.triage(t, nil, nil)
	var missing *artifact.MissingError

	_, err := tr.Phase2Analyse()
	assert.True(t, errors.As(err, &missing))
	assert.Equal(t, "classify", missing.Step)

	err = tr.Phase2Preview(&bytes.Buffer{})
	assert.True(t, errors.As(err, &missing))
	assert.Equal(t, "phase2-analyse", missing.Step)

	_, err = tr.Phase2Archive(context.Background())
	assert.True(t, errors.As(err, &missing))
	assert.Empty(t, f.server.Calls)
}

func TestStatus_NoLedger(t *testing.T) {
	f := newFixture(t)
	tr := f.triage(t, nil, nil)
	_, err := tr.Pass1(context.Background())
	assert.NoError(t, err)

	status, err := tr.Status()
	assert.NoError(t, err)
	assert.Equal(t, uint32(6), status.InboxTotal)
	assert.Equal(t, uint32(5), status.InboxUnread)
	assert.True(t, status.Pass1Done)
	assert.False(t, status.Pass2Done)
	assert.Nil(t, status.LastRun)

	_, err = tr.History("x")
	assert.Error(t, err)
}

func TestMergeRules(t *testing.T) {
	f := newFixture(t)
	out := filepath.Join(f.base, "out")
	for account, senders := range map[string][]string{
		"personal": {"promo@a.example", "solo@b.example"},
		"work":     {"Promo@a.example"},
		"family":   {},
	} {
		d := artifact.NewDir(out, account)
		assert.NoError(t, d.Ensure())
		assert.NoError(t, d.WriteArchiveRules(&artifact.Rules{ArchiveSenders: senders}))
	}
	assert.NoError(t, os.MkdirAll(filepath.Join(out, "new"), 0o755))

	promotions, err := MergeRules(out, f.shared)
	assert.NoError(t, err)
	assert.Equal(t, []artifact.Promotion{{Sender: "promo@a.example", Accounts: []string{"personal", "work"}}}, promotions)

	shared, err := artifact.LoadSharedRules(f.shared)
	assert.NoError(t, err)
	assert.Equal(t, []string{"promo@a.example"}, shared.ArchiveSenders)
	assert.Equal(t, []string{"lists.example.org"}, shared.ArchiveDomains)

	promotions, err = MergeRules(out, f.shared)
	assert.NoError(t, err)
	assert.Empty(t, promotions)
}
