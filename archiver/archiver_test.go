// SPDX-License-Identifier: GPL-3.0-or-later
package archiver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/domain/mocks"
	"github.com/CrawX/go-imap-triage/imaptest"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

func testServer(labelMode bool) *imaptest.Server {
	s := imaptest.NewServer()
	s.LabelMode = labelMode
	start := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)
	senders := []string{
		"deals@shop.example",
		"friend@example.com",
		"deals@shop.example",
		"alerts@spam.example",
		"deals@shop.example",
		"friend@example.com",
	}
	for i, sender := range senders {
		s.Deliver(imaptest.Message{
			From:    sender,
			Subject: "Subject " + string(rune('A'+i)),
			Date:    start.Add(time.Duration(i) * time.Hour),
		})
	}
	return s
}

func inboxSenders(s *imaptest.Server) []string {
	senders := []string{}
	for _, m := range s.Messages(imaptest.Inbox) {
		senders = append(senders, m.From)
	}
	return senders
}

func hasCall(s *imaptest.Server, prefix string) bool {
	for _, c := range s.Calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func callIndex(s *imaptest.Server, prefix string) int {
	for i, c := range s.Calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

var shopAndSpam = SenderTarget([]string{"deals@shop.example"}, []string{"spam.example"})

func TestResolveAndArchive_DryRun(t *testing.T) {
	server := testServer(false)

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, true)
	assert.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Len(t, result.Matched, 4)
	assert.Equal(t, 0, result.Flagged)

	assert.Len(t, server.Messages(imaptest.Inbox), 6)
	assert.False(t, hasCall(server, "store"))
	assert.False(t, hasCall(server, "create"))
	assert.False(t, hasCall(server, "select INBOX ro=false"))
}

func TestResolveAndArchive_FolderBackend(t *testing.T) {
	server := testServer(false)

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Equal(t, BackendFolder, result.Backend)
	assert.Equal(t, "Archive", result.HoldingFolder)
	assert.Equal(t, 4, result.Flagged)
	assert.NoError(t, result.Warning)

	assert.Equal(t, []string{"friend@example.com", "friend@example.com"}, inboxSenders(server))
	assert.Len(t, server.Messages("Archive"), 4)
	for _, m := range server.Messages("Archive") {
		assert.False(t, m.Deleted)
	}

	assert.True(t, callIndex(server, "copy") < callIndex(server, "store deleted"), "copy must precede flagging")
	assert.True(t, callIndex(server, "store deleted") < callIndex(server, "expunge"))
	assert.Equal(t, []string{"expunge 4"}, filterCalls(server, "expunge"))
}

func filterCalls(s *imaptest.Server, prefix string) []string {
	out := []string{}
	for _, c := range s.Calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func TestResolveAndArchive_FolderFallback(t *testing.T) {
	server := testServer(false)
	server.FailCreate = func(folder string) error {
		if folder == "Archive" {
			return errors.New("NO permission denied")
		}
		return nil
	}

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Equal(t, "INBOX.Archive", result.HoldingFolder)
	assert.Len(t, server.Messages("INBOX.Archive"), 4)
}

func TestResolveAndArchive_ExistingHoldingFolder(t *testing.T) {
	server := testServer(false)
	server.AddFolder("INBOX.Archive")

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Equal(t, "INBOX.Archive", result.HoldingFolder)
	assert.False(t, hasCall(server, "create"))
}

func TestResolveAndArchive_NoHoldingFolder(t *testing.T) {
	server := testServer(false)
	server.FailCreate = func(_ string) error { return errors.New("NO quota exceeded") }

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrNoHoldingFolder))

	assert.Len(t, server.Messages(imaptest.Inbox), 6, "nothing may be mutated")
	assert.False(t, hasCall(server, "store"))
	assert.False(t, hasCall(server, "copy"))
}

func TestResolveAndArchive_LabelBackend(t *testing.T) {
	server := testServer(true)

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Equal(t, BackendLabel, result.Backend)
	assert.Equal(t, imaptest.AllMail, result.HoldingFolder)
	assert.Equal(t, 4, result.Flagged)
	assert.NoError(t, result.Warning)

	assert.Len(t, server.Messages(imaptest.Inbox), 2)
	assert.Len(t, server.Messages(imaptest.AllMail), 6)
	assert.False(t, hasCall(server, "copy"))
	assert.Equal(t, []string{"status " + imaptest.AllMail, "status " + imaptest.AllMail}, filterCalls(server, "status"))
}

func TestResolveAndArchive_LabelSafetyWarning(t *testing.T) {
	server := testServer(true)
	server.LoseOnExpunge = true

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err, "a failed safety check is not fatal")
	assert.Error(t, result.Warning)
	assert.Equal(t, 4, result.Flagged, "the flagged count is still reported")
}

func TestResolveAndArchive_ForcedBackend(t *testing.T) {
	server := testServer(true)
	config := DefaultConfig()
	config.Backend = BackendFolder

	result, err := NewArchiver(server, nil, config).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Equal(t, BackendFolder, result.Backend)

	config.Backend = "trash"
	_, err = NewArchiver(testServer(false), nil, config).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.Error(t, err)
}

func TestResolveAndArchive_Idempotent(t *testing.T) {
	server := testServer(false)
	archiver := NewArchiver(server, nil, DefaultConfig())

	_, err := archiver.ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)

	server.Calls = nil
	result, err := archiver.ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Empty(t, result.Matched)
	assert.Equal(t, 0, result.Flagged)
	assert.Equal(t, []string{"select INBOX ro=true", "search", "fetch headers 2"}, server.Calls, "no backend preparation without matches")
}

func TestResolveAndArchive_SkipsFailedBatch(t *testing.T) {
	server := testServer(false)
	server.FailFlag = func(uids []domain.UID) error {
		for _, uid := range uids {
			if uid == 3 {
				return errors.New("BAD command too long")
			}
		}
		return nil
	}
	config := DefaultConfig()
	config.FlagBatchSize = 2

	result, err := NewArchiver(server, nil, config).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Len(t, result.Matched, 4)
	assert.Equal(t, 2, result.Flagged)
	assert.Equal(t, []string{"expunge 2"}, filterCalls(server, "expunge"))

	remaining := []domain.UID{}
	for _, m := range server.Messages(imaptest.Inbox) {
		remaining = append(remaining, m.UID)
		assert.False(t, m.Deleted)
	}
	assert.Equal(t, []domain.UID{1, 2, 3, 6}, remaining)
}

func TestResolveAndArchive_ForeignDeletedWithoutUidPlus(t *testing.T) {
	for _, labelMode := range []bool{false, true} {
		server := testServer(labelMode)
		server.UidPlus = false
		server.Deliver(imaptest.Message{From: "friend@example.com", Subject: "flagged elsewhere", Deleted: true})

		result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, ErrForeignDeleted))

		assert.Len(t, server.Messages(imaptest.Inbox), 7, "nothing may be mutated")
		assert.False(t, hasCall(server, "store"))
		assert.False(t, hasCall(server, "copy"))
		assert.False(t, hasCall(server, "create"))
		assert.False(t, hasCall(server, "expunge"))
	}
}

func TestResolveAndArchive_ForeignDeletedAllowed(t *testing.T) {
	server := testServer(true)
	server.UidPlus = false
	extra := server.Deliver(imaptest.Message{From: "friend@example.com", Subject: "flagged elsewhere", Deleted: true})
	config := DefaultConfig()
	config.ExpungeForeignDeleted = true

	result, err := NewArchiver(server, nil, config).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Equal(t, 4, result.Flagged)
	for _, m := range server.Messages(imaptest.Inbox) {
		assert.NotEqual(t, extra, m.UID, "plain expunge removes foreign deleted messages too")
	}
}

func TestResolveAndArchive_ExpungeFailureFinishesRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	server := testServer(false)
	server.FailExpunge = func(uids []domain.UID) error { return errors.New("NO server busy") }
	ledger := mocks.NewMockArchiveLedger(ctrl)

	gomock.InOrder(
		ledger.EXPECT().StartRun(gomock.Any()).DoAndReturn(func(run *domain.ArchiveRun) error {
			run.Id = "run-2"
			return nil
		}),
		ledger.EXPECT().RecordBatch(gomock.Eq("run-2"), gomock.Len(4)).Return(nil),
		ledger.EXPECT().FinishRun(gomock.Eq("run-2"), gomock.Eq(0), gomock.Eq("could not expunge 4 flagged messages: NO server busy")).Return(nil),
	)

	result, err := NewArchiver(server, ledger, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.EqualError(t, err, "could not expunge 4 flagged messages: NO server busy")
	assert.Equal(t, "run-2", result.RunId)
	assert.Equal(t, 0, result.Flagged)
	assert.Len(t, server.Messages(imaptest.Inbox), 6)
}

// UIDs captured before an archive run keep pointing at the same messages
// afterwards, only the archived ones disappear.
func TestResolveAndArchive_IdentifierStability(t *testing.T) {
	server := testServer(false)
	_, err := server.Select(imaptest.Inbox, true)
	assert.NoError(t, err)
	before, err := server.FetchHeaders([]domain.UID{1, 2, 3, 4, 5, 6})
	assert.NoError(t, err)

	_, err = NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)

	_, err = server.Select(imaptest.Inbox, true)
	assert.NoError(t, err)
	after, err := server.FetchHeaders([]domain.UID{1, 2, 3, 4, 5, 6})
	assert.NoError(t, err)

	assert.Len(t, after, 2)
	for _, a := range after {
		for _, b := range before {
			if a.UID == b.UID {
				assert.Equal(t, b.Subject, a.Subject)
				assert.Equal(t, b.SenderEmail, a.SenderEmail)
			}
		}
	}
	assert.Equal(t, domain.SeqNum(1), after[0].SessionID)
	assert.Equal(t, domain.UID(2), after[0].UID)
}

func TestResolveAndArchive_IdentityTarget(t *testing.T) {
	server := testServer(false)
	archive := []Identity{
		{UID: 1, SenderEmail: "deals@shop.example", Subject: "Subject A"},
		{UID: 2, SenderEmail: "friend@example.com", Subject: "Subject B"},
	}

	result, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), IdentityTarget(archive, nil, 1), true)
	assert.NoError(t, err)
	assert.Len(t, result.Matched, 2)

	server.SetUidValidity(imaptest.Inbox, 2)
	keep := []Identity{{UID: 6, SenderEmail: "friend@example.com", Subject: "Subject B"}}
	result, err = NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(context.Background(), IdentityTarget(archive, keep, 1), false)
	assert.NoError(t, err)
	assert.Len(t, result.Matched, 1)
	assert.Equal(t, domain.UID(1), result.Matched[0].UID)
	assert.Len(t, server.Messages(imaptest.Inbox), 5)
}

func TestResolveAndArchive_Ledger(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	server := testServer(true)
	server.LoseOnExpunge = true
	ledger := mocks.NewMockArchiveLedger(ctrl)

	gomock.InOrder(
		ledger.EXPECT().StartRun(gomock.Any()).DoAndReturn(func(run *domain.ArchiveRun) error {
			assert.Equal(t, "personal", run.Account)
			assert.Equal(t, BackendLabel, run.Backend)
			assert.Equal(t, uint32(1), run.UidValidity)
			assert.Equal(t, 4, run.Matched)
			run.Id = "run-1"
			return nil
		}),
		ledger.EXPECT().RecordBatch(gomock.Eq("run-1"), gomock.Len(3)).Return(nil),
		ledger.EXPECT().RecordBatch(gomock.Eq("run-1"), gomock.Eq([]domain.ArchivedMail{{Uid: 5, SenderEmail: "deals@shop.example", Subject: "Subject E"}})).Return(errors.New("disk full")),
		ledger.EXPECT().FinishRun(gomock.Eq("run-1"), gomock.Eq(4), gomock.Not(gomock.Eq(""))).Return(nil),
	)

	config := DefaultConfig()
	config.Account = "personal"
	config.FlagBatchSize = 3
	result, err := NewArchiver(server, ledger, config).ResolveAndArchive(context.Background(), shopAndSpam, false)
	assert.NoError(t, err)
	assert.Equal(t, "run-1", result.RunId)
	assert.Equal(t, 4, result.Flagged)
}

func TestResolveAndArchive_Cancelled(t *testing.T) {
	server := testServer(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewArchiver(server, nil, DefaultConfig()).ResolveAndArchive(ctx, shopAndSpam, false)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, server.Messages(imaptest.Inbox), 6)
}
