// SPDX-License-Identifier: GPL-3.0-or-later
package domain

import "time"

//go:generate mockgen -destination=mocks/imap.go -package=mocks . ImapConnector

// UID is the durable IMAP identifier of a message. It stays valid across
// sessions and expunges as long as the folder's UIDVALIDITY is unchanged and is
// the only identifier that may be persisted.
type UID uint32

// SeqNum is the ephemeral message sequence number of the current session. Any
// expunge renumbers the mailbox, so it is never persisted nor accepted by
// resolution or archival APIs.
type SeqNum uint32

type MessageRecord struct {
	SessionID   SeqNum    `json:"-"`
	UID         UID       `json:"uid"`
	SenderEmail string    `json:"from_email"`
	SenderName  string    `json:"from_name"`
	Subject     string    `json:"subject"`
	Date        time.Time `json:"date"`
	Unread      bool      `json:"is_unread"`
	BodyPreview string    `json:"body_preview,omitempty"`
}

type MailboxStatus struct {
	Name        string
	UidValidity uint32
	Messages    uint32
	Unseen      uint32
}

type ImapConnector interface {
	// Select opens folder for the following UID commands.
	Select(folder string, readOnly bool) (*MailboxStatus, error)
	// Status reads folder counters without selecting it.
	Status(folder string) (*MailboxStatus, error)
	ListUids() ([]UID, error)
	FetchHeaders(uids []UID) ([]*MessageRecord, error)
	// FetchUnread reads FLAGS only and reports per UID whether \Seen is unset.
	FetchUnread(uids []UID) (map[UID]bool, error)
	FetchBodies(uids []UID, timeout time.Duration) (map[UID]string, error)
	FlagDeleted(uids []UID) error
	ExpungeReady() (error, error)
	Expunge(uids []UID) error
	Copy(uids []UID, folder string) error
	Create(folder string) error
	ListFolders() ([]string, error)
	// LabelBased reports whether the server keeps expunged INBOX messages in
	// an all-messages view (Gmail labels).
	LabelBased() bool

	Close() error
}

// PartitionUids splits uids into batches of at most partitionSize without
// copying. Taken from https://github.com/golang/go/wiki/SliceTricks
func PartitionUids(uids []UID, partitionSize int) [][]UID {
	if len(uids) == 0 {
		return nil
	}
	batches := make([][]UID, 0, (len(uids)+partitionSize-1)/partitionSize)

	for partitionSize < len(uids) {
		uids, batches = uids[partitionSize:], append(batches, uids[0:partitionSize:partitionSize])
	}
	batches = append(batches, uids)

	return batches
}
