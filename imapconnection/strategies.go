// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"github.com/CrawX/go-imap-triage/domain"

	"github.com/emersion/go-imap"
)

//go:generate mockgen -destination=strategies_mocks_test.go -package=imapconnection -source strategies.go

// Consolidated file for the expunge strategy and the client subsets it needs so
// gomock can generate mocks in source mode.

type expunger interface {
	expunge(uids []domain.UID) error
	expungeReady() (error, error)
}

type uidExpungeClient interface {
	UidExpunge(seqSet *imap.SeqSet, ch chan uint32) error
}

type expungeSearchClient interface {
	Expunge(ch chan uint32) error
	UidSearch(criteria *imap.SearchCriteria) (uids []uint32, err error)
}
