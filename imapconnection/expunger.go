// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"errors"
	"fmt"

	"github.com/CrawX/go-imap-triage/domain"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
)

// uidPlusExpunger removes exactly the given UIDs with UID EXPUNGE, leaving any
// other \Deleted message in the folder untouched.
type uidPlusExpunger struct {
	client uidExpungeClient
	l      logrus.FieldLogger
}

func (u *uidPlusExpunger) expunge(uids []domain.UID) error {
	if len(uids) == 0 {
		return nil
	}

	out := make(chan uint32)
	done := make(chan error, 1)
	go func() {
		done <- u.client.UidExpunge(toSeqSet(uids), out)
	}()

	expunged := 0
	for range out {
		expunged++
	}

	err := <-done
	if err != nil {
		return fmt.Errorf("could not expunge mails: %w", err)
	}

	if expunged != len(uids) {
		u.l.WithFields(logrus.Fields{"expected": len(uids), "expunged": expunged}).Warn("Unexpected number of expunges")
	}

	return nil
}

func (u *uidPlusExpunger) expungeReady() (error, error) {
	// UID EXPUNGE only touches the given uids and is therefore always ready
	return nil, nil
}

var ItemsWithDeletedFlagPresent = errors.New("folder has previous items with delete flag set")

// compatibilityExpunger falls back to a plain EXPUNGE which removes every
// message carrying \Deleted, including ones flagged by other clients.
type compatibilityExpunger struct {
	client expungeSearchClient
	l      logrus.FieldLogger
}

func (c *compatibilityExpunger) expunge(uids []domain.UID) error {
	if len(uids) == 0 {
		return nil
	}

	out := make(chan uint32)
	done := make(chan error, 1)
	go func() {
		done <- c.client.Expunge(out)
	}()

	expunged := 0
	for range out {
		expunged++
	}

	err := <-done
	if err != nil {
		return fmt.Errorf("could not expunge mails: %w", err)
	}

	if expunged != len(uids) {
		c.l.WithFields(logrus.Fields{"expected": len(uids), "expunged": expunged}).Warn("Unexpected number of expunges")
	}

	return nil
}

func (c *compatibilityExpunger) expungeReady() (error, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithFlags = []string{imap.DeletedFlag}
	ids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("could search for deleted in folder: %w", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}
	return fmt.Errorf("%w (%d items)", ItemsWithDeletedFlagPresent, len(ids)), nil
}

func toSeqSet(uids []domain.UID) *imap.SeqSet {
	seqset := &imap.SeqSet{}
	for _, uid := range uids {
		seqset.AddNum(uint32(uid))
	}
	return seqset
}
