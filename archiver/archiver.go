// SPDX-License-Identifier: GPL-3.0-or-later
package archiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/sirupsen/logrus"
)

const Inbox = "INBOX"

// ErrForeignDeleted is returned before any mutation when INBOX holds messages
// flagged \Deleted by another client and the server cannot expunge by UID.
var ErrForeignDeleted = errors.New("inbox contains messages flagged deleted by another client")

type Config struct {
	Account        string
	ScanBatchSize  int
	FlagBatchSize  int
	Backend        string
	AllMailFolder  string
	HoldingFolders []string
	// ExpungeForeignDeleted lets a plain EXPUNGE also remove messages flagged
	// \Deleted by someone else. Those are not copied to the holding folder.
	ExpungeForeignDeleted bool
}

func DefaultConfig() Config {
	return Config{
		ScanBatchSize:  500,
		FlagBatchSize:  200,
		Backend:        BackendAuto,
		AllMailFolder:  DefaultAllMailFolder,
		HoldingFolders: DefaultHoldingFolders,
	}
}

type Result struct {
	DryRun  bool
	Matched []*domain.MessageRecord
	// Flagged counts messages flagged and expunged, it may be lower than
	// len(Matched) when batches failed.
	Flagged       int
	Backend       string
	HoldingFolder string
	RunId         string
	// Warning is set when the safety check could not confirm that every
	// archived message is still recoverable.
	Warning error
}

type Archiver struct {
	conn   domain.ImapConnector
	ledger domain.ArchiveLedger
	config Config

	l *logrus.Logger
}

// NewArchiver creates an archiver for conn. ledger may be nil.
func NewArchiver(conn domain.ImapConnector, ledger domain.ArchiveLedger, config Config) *Archiver {
	defaults := DefaultConfig()
	if config.ScanBatchSize <= 0 {
		config.ScanBatchSize = defaults.ScanBatchSize
	}
	if config.FlagBatchSize <= 0 {
		config.FlagBatchSize = defaults.FlagBatchSize
	}
	if config.Backend == "" {
		config.Backend = defaults.Backend
	}
	if config.AllMailFolder == "" {
		config.AllMailFolder = defaults.AllMailFolder
	}
	if len(config.HoldingFolders) == 0 {
		config.HoldingFolders = defaults.HoldingFolders
	}

	return &Archiver{
		conn:   conn,
		ledger: ledger,
		config: config,
		l:      log.Logger(log.LOG_ARCHIVER),
	}
}

// Resolve scans INBOX by UID and returns the records currently matching
// target, together with the mailbox UIDVALIDITY.
func (a *Archiver) Resolve(ctx context.Context, target *Target) ([]*domain.MessageRecord, uint32, error) {
	status, err := a.conn.Select(Inbox, true)
	if err != nil {
		return nil, 0, fmt.Errorf("could not select %s: %w", Inbox, err)
	}

	uids, err := a.conn.ListUids()
	if err != nil {
		return nil, 0, fmt.Errorf("could not list uids: %w", err)
	}

	match := target.matcher(status.UidValidity)
	matched := []*domain.MessageRecord{}
	scanned := 0
	for _, batch := range domain.PartitionUids(uids, a.config.ScanBatchSize) {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("scan interrupted: %w", err)
		}

		records, err := a.conn.FetchHeaders(batch)
		if err != nil {
			a.l.WithFields(logrus.Fields{"batchsize": len(batch), "error": err}).Warn("Scan batch failed, retrying one by one")
			records = a.scanSingly(ctx, batch)
		}
		for _, r := range records {
			if match(r) {
				matched = append(matched, r)
			}
		}

		scanned += len(batch)
		a.l.WithFields(logrus.Fields{"scanned": scanned, "total": len(uids), "matched": len(matched)}).Debug("Scanned batch")
	}

	return matched, status.UidValidity, nil
}

func (a *Archiver) scanSingly(ctx context.Context, batch []domain.UID) []*domain.MessageRecord {
	records := []*domain.MessageRecord{}
	for _, uid := range batch {
		if ctx.Err() != nil {
			break
		}
		single, err := a.conn.FetchHeaders([]domain.UID{uid})
		if err != nil {
			a.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Warn("Skipping message")
			continue
		}
		records = append(records, single...)
	}
	return records
}

// ResolveAndArchive removes the messages matching target from INBOX while
// keeping them recoverable. With dryRun it only resolves. A failed safety
// check is reported in Result.Warning, not as an error.
func (a *Archiver) ResolveAndArchive(ctx context.Context, target *Target, dryRun bool) (*Result, error) {
	matched, uidValidity, err := a.Resolve(ctx, target)
	if err != nil {
		return nil, err
	}

	result := &Result{DryRun: dryRun, Matched: matched}
	baseLogger := a.l.WithFields(logrus.Fields{"account": a.config.Account, "matched": len(matched), "dryrun": dryRun})
	if len(matched) == 0 {
		baseLogger.Info("No messages to archive")
		return result, nil
	}
	if dryRun {
		baseLogger.Info("Dry run, not archiving")
		return result, nil
	}

	_, err = a.conn.Select(Inbox, false)
	if err != nil {
		return nil, fmt.Errorf("could not select %s for writing: %w", Inbox, err)
	}

	notReady, err := a.conn.ExpungeReady()
	if err != nil {
		return nil, fmt.Errorf("could not check expunge readiness: %w", err)
	}
	if notReady != nil {
		if !a.config.ExpungeForeignDeleted {
			baseLogger.WithField("reason", notReady).Error("Refusing to expunge, messages flagged by someone else would be lost")
			return nil, fmt.Errorf("%w: %v", ErrForeignDeleted, notReady)
		}
		baseLogger.WithField("reason", notReady).Error("Expunge will also remove messages flagged by someone else, they are not archived")
	}

	backend, err := newBackend(a.conn, a.config, a.l)
	if err != nil {
		return nil, err
	}
	err = backend.Prepare()
	if err != nil {
		return nil, fmt.Errorf("could not prepare %s archive: %w", backend.Name(), err)
	}
	result.Backend = backend.Name()
	result.HoldingFolder = backend.HoldingFolder()

	if a.ledger != nil {
		run := &domain.ArchiveRun{
			Account:       a.config.Account,
			Backend:       backend.Name(),
			HoldingFolder: backend.HoldingFolder(),
			UidValidity:   uidValidity,
			Matched:       len(matched),
		}
		err = a.ledger.StartRun(run)
		if err != nil {
			return nil, fmt.Errorf("could not record archive run: %w", err)
		}
		result.RunId = run.Id
	}

	flagged, interrupted := a.flag(ctx, backend, matched, result.RunId)

	if len(flagged) > 0 {
		baseLogger.WithField("flagged", len(flagged)).Info("Expunging")
		err = a.conn.Expunge(flagged)
		if err != nil {
			err = fmt.Errorf("could not expunge %d flagged messages: %w", len(flagged), err)
			a.finishRun(baseLogger, result.RunId, 0, err.Error())
			return result, err
		}
	}
	result.Flagged = len(flagged)

	result.Warning = backend.Verify()
	warning := ""
	if result.Warning != nil {
		warning = result.Warning.Error()
		baseLogger.WithFields(logrus.Fields{"flagged": result.Flagged, "warning": result.Warning}).Error("SAFETY CHECK FAILED, archived messages may not be recoverable")
	}
	a.finishRun(baseLogger, result.RunId, result.Flagged, warning)

	baseLogger.WithFields(logrus.Fields{"flagged": result.Flagged, "backend": result.Backend, "folder": result.HoldingFolder}).Info("Archived")
	if interrupted != nil {
		return result, fmt.Errorf("archive interrupted: %w", interrupted)
	}
	return result, nil
}

func (a *Archiver) finishRun(logger *logrus.Entry, runId string, flagged int, warning string) {
	if a.ledger == nil {
		return
	}
	err := a.ledger.FinishRun(runId, flagged, warning)
	if err != nil {
		logger.WithField("error", err).Warn("Could not finish archive run in ledger")
	}
}

// flag stages and flags matched in batches. Failing batches are skipped. On
// cancellation it stops early and returns what was flagged so far.
func (a *Archiver) flag(ctx context.Context, backend Backend, matched []*domain.MessageRecord, runId string) ([]domain.UID, error) {
	byUid := make(map[domain.UID]*domain.MessageRecord, len(matched))
	uids := make([]domain.UID, 0, len(matched))
	for _, r := range matched {
		byUid[r.UID] = r
		uids = append(uids, r.UID)
	}

	flagged := []domain.UID{}
	for _, batch := range domain.PartitionUids(uids, a.config.FlagBatchSize) {
		if err := ctx.Err(); err != nil {
			return flagged, err
		}

		batchLogger := a.l.WithFields(logrus.Fields{"batchsize": len(batch), "first": batch[0]})
		err := backend.Stage(batch)
		if err != nil {
			batchLogger.WithField("error", err).Error("Could not stage batch, skipping")
			continue
		}
		err = a.conn.FlagDeleted(batch)
		if err != nil {
			batchLogger.WithField("error", err).Error("Could not flag batch, skipping")
			continue
		}
		flagged = append(flagged, batch...)

		if a.ledger != nil {
			mails := make([]domain.ArchivedMail, 0, len(batch))
			for _, uid := range batch {
				mails = append(mails, domain.ArchivedMail{Uid: uid, SenderEmail: byUid[uid].SenderEmail, Subject: byUid[uid].Subject})
			}
			err = a.ledger.RecordBatch(runId, mails)
			if err != nil {
				batchLogger.WithField("error", err).Warn("Could not record batch in ledger")
			}
		}
		batchLogger.WithFields(logrus.Fields{"flagged": len(flagged), "total": len(matched)}).Debug("Flagged batch")
	}
	return flagged, nil
}
