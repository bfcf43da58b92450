// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "time"

//go:generate mockgen -destination=mocks/persistence.go -package=mocks . ArchiveLedger

type ArchiveRun struct {
	Id            string
	Account       string
	Backend       string
	HoldingFolder string
	UidValidity   uint32
	StartedAt     time.Time
	FinishedAt    *time.Time
	Matched       int
	Flagged       int
	Warning       string
}

type ArchivedMail struct {
	Uid         UID
	SenderEmail string
	Subject     string
}

// ArchiveLedger records which messages an archive run removed from INBOX and
// where the recoverable copy lives.
type ArchiveLedger interface {
	Close() error
	StartRun(run *ArchiveRun) error
	RecordBatch(runId string, mails []ArchivedMail) error
	FinishRun(runId string, flagged int, warning string) error
	Runs(account string) ([]*ArchiveRun, error)
	ArchivedMails(runId string) ([]ArchivedMail, error)
}
