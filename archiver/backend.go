// SPDX-License-Identifier: GPL-3.0-or-later
package archiver

import (
	"errors"
	"fmt"

	"github.com/CrawX/go-imap-triage/domain"

	"github.com/sirupsen/logrus"
)

const (
	BackendAuto   = "auto"
	BackendLabel  = "label"
	BackendFolder = "folder"

	DefaultAllMailFolder = "[Gmail]/All Mail"
)

var DefaultHoldingFolders = []string{"Archive", "INBOX.Archive"}

var ErrNoHoldingFolder = errors.New("no holding folder exists or could be created")

// Backend keeps removed messages recoverable. Prepare runs once before any
// mutation, Stage before each batch is flagged and Verify after the expunge.
type Backend interface {
	Name() string
	HoldingFolder() string
	Prepare() error
	Stage(uids []domain.UID) error
	// Verify returns a non-nil warning if messages may have been lost.
	Verify() error
}

// labelBackend relies on the server keeping expunged INBOX messages in an
// all-messages view.
type labelBackend struct {
	conn    domain.ImapConnector
	allMail string
	before  uint32
	l       logrus.FieldLogger
}

func (b *labelBackend) Name() string {
	return BackendLabel
}

func (b *labelBackend) HoldingFolder() string {
	return b.allMail
}

func (b *labelBackend) Prepare() error {
	status, err := b.conn.Status(b.allMail)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", b.allMail, err)
	}
	b.before = status.Messages
	b.l.WithFields(logrus.Fields{"folder": b.allMail, "messages": b.before}).Info("Snapshot taken")
	return nil
}

func (b *labelBackend) Stage(_ []domain.UID) error {
	return nil
}

func (b *labelBackend) Verify() error {
	status, err := b.conn.Status(b.allMail)
	if err != nil {
		return fmt.Errorf("could not re-read %s, archived messages are unverified: %w", b.allMail, err)
	}
	if status.Messages < b.before {
		return fmt.Errorf("%s shrank from %d to %d messages, check the server's expunge settings", b.allMail, b.before, status.Messages)
	}
	b.l.WithFields(logrus.Fields{"before": b.before, "after": status.Messages}).Info("Safety check passed")
	return nil
}

// folderBackend copies every batch into a holding folder before it is
// flagged.
type folderBackend struct {
	conn       domain.ImapConnector
	candidates []string
	folder     string
	l          logrus.FieldLogger
}

func (b *folderBackend) Name() string {
	return BackendFolder
}

func (b *folderBackend) HoldingFolder() string {
	return b.folder
}

func (b *folderBackend) Prepare() error {
	folders, err := b.conn.ListFolders()
	if err != nil {
		return fmt.Errorf("could not list folders: %w", err)
	}
	existing := map[string]bool{}
	for _, f := range folders {
		existing[f] = true
	}

	for _, candidate := range b.candidates {
		if existing[candidate] {
			b.folder = candidate
			b.l.WithField("folder", candidate).Info("Using existing holding folder")
			return nil
		}
	}

	for _, candidate := range b.candidates {
		err := b.conn.Create(candidate)
		if err != nil {
			b.l.WithFields(logrus.Fields{"folder": candidate, "error": err}).Warn("Could not create holding folder")
			continue
		}
		b.folder = candidate
		b.l.WithField("folder", candidate).Info("Created holding folder")
		return nil
	}

	return fmt.Errorf("%w (tried %v)", ErrNoHoldingFolder, b.candidates)
}

func (b *folderBackend) Stage(uids []domain.UID) error {
	err := b.conn.Copy(uids, b.folder)
	if err != nil {
		return fmt.Errorf("could not copy to %s: %w", b.folder, err)
	}
	return nil
}

func (b *folderBackend) Verify() error {
	return nil
}

// newBackend resolves the backend once per session. Auto picks the label
// backend when the server is label based.
func newBackend(conn domain.ImapConnector, config Config, l logrus.FieldLogger) (Backend, error) {
	kind := config.Backend
	if kind == "" || kind == BackendAuto {
		kind = BackendFolder
		if conn.LabelBased() {
			kind = BackendLabel
		}
	}

	switch kind {
	case BackendLabel:
		return &labelBackend{conn: conn, allMail: config.AllMailFolder, l: l}, nil
	case BackendFolder:
		return &folderBackend{conn: conn, candidates: config.HoldingFolders, l: l}, nil
	}
	return nil, fmt.Errorf("unknown archive backend %q, use %s, %s or %s", kind, BackendAuto, BackendLabel, BackendFolder)
}
