// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"
)

const (
	GmailCapability = "X-GM-EXT-1"
	// Body fetches only need the first text part for previews
	maxBodyOctets = 64 * 1024
)

var headerSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    []string{"From", "Subject", "Date"},
	},
	Peek: true,
}

var bodySection = &imap.BodySectionName{
	Peek:    true,
	Partial: []int{0, maxBodyOctets},
}

// Only peek sections are fetched, a fetch must never set \Seen.
var (
	headerFetchItems = []imap.FetchItem{imap.FetchFlags, imap.FetchUid, headerSection.FetchItem()}
	flagFetchItems   = []imap.FetchItem{imap.FetchFlags, imap.FetchUid}
	bodyFetchItems   = []imap.FetchItem{imap.FetchUid, bodySection.FetchItem()}
)

type ImapConnection struct {
	connection *client.Client
	expunger   expunger
	labelBased bool

	server, user, password string
	compress               bool

	selectedFolder   string
	selectedReadOnly bool

	l *logrus.Logger
}

func NewImapConnection(server string, user string, password string, useCompression bool) (*ImapConnection, error) {
	conn := &ImapConnection{
		server:   server,
		user:     user,
		password: password,
		compress: useCompression,
		l:        log.Logger(log.LOG_IMAP),
	}

	err := conn.connect()
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func (ic *ImapConnection) connect() error {
	imapClient, err := client.DialTLS(ic.server, nil)
	if err != nil {
		return fmt.Errorf("could not dial to imap: %w", err)
	}

	err = imapClient.Login(ic.user, ic.password)
	if err != nil {
		_ = imapClient.Logout()
		return fmt.Errorf("could not login to imap: %w", err)
	}

	baseLogger := ic.l.WithFields(logrus.Fields{"server": ic.server, "user": ic.user})
	baseLogger.Debug("Logged in to server")

	if ic.compress {
		compressClient := compress.NewClient(imapClient)
		compressSupported, err := compressClient.SupportCompress(compress.Deflate)
		if err != nil {
			return fmt.Errorf("could not check for COMPRESS support: %w", err)
		}
		if compressSupported {
			err = compressClient.Compress(compress.Deflate)
			if err != nil {
				return fmt.Errorf("could not enable compression: %w", err)
			}
			baseLogger.Debug("Enabled COMPRESS=DEFLATE")
		} else {
			baseLogger.Info("COMPRESS=DEFLATE not supported on server, continuing uncompressed")
		}
	}

	labelBased, err := imapClient.Support(GmailCapability)
	if err != nil {
		return fmt.Errorf("could not check for %s support: %w", GmailCapability, err)
	}

	uidPlusClient := uidplus.NewClient(imapClient)
	uidPlusSupported, err := uidPlusClient.SupportUidPlus()
	if err != nil {
		return fmt.Errorf("could not check for UIDPLUS support: %w", err)
	}

	if uidPlusSupported {
		baseLogger.Debug("UIDPLUS supported on server, using UID EXPUNGE")
		ic.expunger = &uidPlusExpunger{client: uidPlusClient, l: baseLogger}
	} else {
		baseLogger.Info("UIDPLUS not supported on server, falling back to plain EXPUNGE")
		ic.expunger = &compatibilityExpunger{client: imapClient, l: baseLogger}
	}

	ic.connection = imapClient
	ic.labelBased = labelBased
	baseLogger.WithFields(logrus.Fields{"labelbased": labelBased}).Debug("Connection ready")

	return nil
}

// ensureConnected re-establishes a session the server or a timeout closed and
// restores the previously selected folder.
func (ic *ImapConnection) ensureConnected() error {
	if ic.connection != nil && ic.connection.State() != imap.LogoutState {
		return nil
	}

	ic.l.WithFields(logrus.Fields{"server": ic.server, "folder": ic.selectedFolder}).Warn("Connection lost, reconnecting")
	err := ic.connect()
	if err != nil {
		return fmt.Errorf("could not reconnect: %w", err)
	}

	if len(ic.selectedFolder) > 0 {
		_, err = ic.connection.Select(ic.selectedFolder, ic.selectedReadOnly)
		if err != nil {
			return fmt.Errorf("could not reselect %s: %w", ic.selectedFolder, err)
		}
	}

	return nil
}

func (ic *ImapConnection) Select(folder string, readOnly bool) (*domain.MailboxStatus, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}

	m, err := ic.connection.Select(folder, readOnly)
	if err != nil {
		return nil, fmt.Errorf("could not select folder: %w", err)
	}

	ic.selectedFolder = folder
	ic.selectedReadOnly = readOnly
	return &domain.MailboxStatus{
		Name:        m.Name,
		UidValidity: m.UidValidity,
		Messages:    m.Messages,
		Unseen:      m.Unseen,
	}, nil
}

func (ic *ImapConnection) Status(folder string) (*domain.MailboxStatus, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}

	m, err := ic.connection.Status(folder, []imap.StatusItem{imap.StatusMessages, imap.StatusUnseen, imap.StatusUidValidity})
	if err != nil {
		return nil, fmt.Errorf("could not get status of %s: %w", folder, err)
	}

	return &domain.MailboxStatus{
		Name:        m.Name,
		UidValidity: m.UidValidity,
		Messages:    m.Messages,
		Unseen:      m.Unseen,
	}, nil
}

func (ic *ImapConnection) ListUids() ([]domain.UID, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}

	// Get all UIDs in folder (empty search criteria)
	ids, err := ic.connection.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, fmt.Errorf("could not list folder: %w", err)
	}

	uids := make([]domain.UID, len(ids))
	for i, id := range ids {
		uids[i] = domain.UID(id)
	}
	return uids, nil
}

func (ic *ImapConnection) FetchHeaders(uids []domain.UID) ([]*domain.MessageRecord, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}

	out := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.UidFetch(toSeqSet(uids), headerFetchItems, out)
	}()

	results := []*domain.MessageRecord{}
	for msg := range out {
		record, err := recordFromMessage(msg)
		if err != nil {
			ic.l.WithFields(logrus.Fields{"uid": msg.Uid, "error": err}).Debug("Skipping unparseable message")
			continue
		}
		results = append(results, record)
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not fetch headers: %w", err)
	}

	return results, nil
}

func recordFromMessage(msg *imap.Message) (*domain.MessageRecord, error) {
	r := msg.GetBody(headerSection)
	if r == nil {
		return nil, fmt.Errorf("header section missing in response")
	}
	rawHeaders, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("could not read headers: %w", err)
	}

	info, err := mail.ParseHeaders(rawHeaders)
	if err != nil {
		return nil, fmt.Errorf("could not parse headers: %w", err)
	}

	return &domain.MessageRecord{
		SessionID:   domain.SeqNum(msg.SeqNum),
		UID:         domain.UID(msg.Uid),
		SenderEmail: info.SenderEmail,
		SenderName:  info.SenderName,
		Subject:     info.Subject,
		Date:        info.Date,
		Unread:      isUnread(msg.Flags),
	}, nil
}

func isUnread(flags []string) bool {
	for _, flag := range flags {
		if flag == imap.SeenFlag {
			return false
		}
	}
	return true
}

func (ic *ImapConnection) FetchUnread(uids []domain.UID) (map[domain.UID]bool, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}

	out := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.UidFetch(toSeqSet(uids), flagFetchItems, out)
	}()

	results := map[domain.UID]bool{}
	for msg := range out {
		results[domain.UID(msg.Uid)] = isUnread(msg.Flags)
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not fetch flags: %w", err)
	}
	return results, nil
}

// FetchBodies returns the (possibly truncated) raw RFC 822 message per UID.
// A non-zero timeout bounds the whole command.
func (ic *ImapConnection) FetchBodies(uids []domain.UID, timeout time.Duration) (map[domain.UID]string, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}

	previousTimeout := ic.connection.Timeout
	ic.connection.Timeout = timeout
	defer func() { ic.connection.Timeout = previousTimeout }()

	out := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.UidFetch(toSeqSet(uids), bodyFetchItems, out)
	}()

	results := map[domain.UID]string{}
	for msg := range out {
		r := msg.GetBody(bodySection)
		if r == nil {
			ic.l.WithFields(logrus.Fields{"uid": msg.Uid}).Debug("Body section missing in response")
			continue
		}
		raw, err := ioutil.ReadAll(r)
		if err != nil {
			ic.l.WithFields(logrus.Fields{"uid": msg.Uid, "error": err}).Debug("Could not read body")
			continue
		}
		results[domain.UID(msg.Uid)] = string(raw)
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not fetch bodies: %w", err)
	}

	return results, nil
}

func (ic *ImapConnection) FlagDeleted(uids []domain.UID) error {
	if err := ic.ensureConnected(); err != nil {
		return err
	}

	err := ic.connection.UidStore(toSeqSet(uids), imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil)
	if err != nil {
		return fmt.Errorf("could set delete flag: %w", err)
	}

	return nil
}

func (ic *ImapConnection) ExpungeReady() (error, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}
	return ic.expunger.expungeReady()
}

func (ic *ImapConnection) Expunge(uids []domain.UID) error {
	if err := ic.ensureConnected(); err != nil {
		return err
	}
	return ic.expunger.expunge(uids)
}

func (ic *ImapConnection) Copy(uids []domain.UID, folder string) error {
	if err := ic.ensureConnected(); err != nil {
		return err
	}

	err := ic.connection.UidCopy(toSeqSet(uids), folder)
	if err != nil {
		return fmt.Errorf("could not copy to %s: %w", folder, err)
	}

	return nil
}

func (ic *ImapConnection) Create(folder string) error {
	if err := ic.ensureConnected(); err != nil {
		return err
	}

	err := ic.connection.Create(folder)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", folder, err)
	}

	return nil
}

func (ic *ImapConnection) ListFolders() ([]string, error) {
	if err := ic.ensureConnected(); err != nil {
		return nil, err
	}

	out := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.List("", "*", out)
	}()

	folders := []string{}
	for m := range out {
		folders = append(folders, m.Name)
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not list folders: %w", err)
	}

	return folders, nil
}

func (ic *ImapConnection) LabelBased() bool {
	return ic.labelBased
}

func (ic *ImapConnection) Close() error {
	if ic.connection == nil || ic.connection.State() == imap.LogoutState {
		return nil
	}
	return ic.connection.Logout()
}
