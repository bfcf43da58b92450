// SPDX-License-Identifier: GPL-3.0-or-later

// Package imaptest provides an in-memory mail server implementing
// domain.ImapConnector for tests.
package imaptest

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/imapconnection"
	"github.com/CrawX/go-imap-triage/mail"
)

const (
	Inbox   = "INBOX"
	AllMail = "[Gmail]/All Mail"
)

type Message struct {
	UID     domain.UID
	From    string
	Subject string
	Date    time.Time
	Seen    bool
	Deleted bool
	Body    string
}

func (m *Message) rawHeader() string {
	h := fmt.Sprintf("From: %s\r\nSubject: %s\r\n", m.From, m.Subject)
	if !m.Date.IsZero() {
		h += "Date: " + m.Date.Format(time.RFC1123Z) + "\r\n"
	}
	return h + "\r\n"
}

func (m *Message) raw() string {
	return m.rawHeader() + m.Body
}

type folder struct {
	uidValidity uint32
	nextUID     domain.UID
	messages    []*Message
}

// Server is a single account. All methods are safe for concurrent use but the
// selected folder is shared, as on a real session.
type Server struct {
	mu sync.Mutex

	folders  map[string]*folder
	selected string
	readOnly bool

	// LabelMode mirrors INBOX into AllMail and reports LabelBased.
	LabelMode bool
	// UidPlus selects UID EXPUNGE semantics, otherwise EXPUNGE removes every
	// \Deleted message.
	UidPlus bool
	// LoseOnExpunge drops expunged messages from AllMail too.
	LoseOnExpunge bool

	FailFetchHeaders func(uids []domain.UID) error
	FailFetchUnread  func(uids []domain.UID) error
	FailFetchBodies  func(uids []domain.UID, timeout time.Duration) error
	FailFlag         func(uids []domain.UID) error
	FailCopy         func(uids []domain.UID, folder string) error
	FailCreate       func(folder string) error
	FailExpunge      func(uids []domain.UID) error

	Calls []string
}

func NewServer() *Server {
	s := &Server{
		folders: map[string]*folder{},
		UidPlus: true,
	}
	s.folders[Inbox] = &folder{uidValidity: 1, nextUID: 1}
	return s
}

// AddFolder creates an empty folder bypassing Create.
func (s *Server) AddFolder(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.folders[name]; !ok {
		s.folders[name] = &folder{uidValidity: 1, nextUID: 1}
	}
}

// Deliver appends a message to INBOX and returns its UID.
func (s *Server) Deliver(m Message) domain.UID {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox := s.folders[Inbox]
	m.UID = inbox.nextUID
	inbox.nextUID++
	stored := m
	inbox.messages = append(inbox.messages, &stored)

	if s.LabelMode {
		all := s.folderLocked(AllMail)
		mirror := m
		mirror.UID = all.nextUID
		all.nextUID++
		all.messages = append(all.messages, &mirror)
	}
	return m.UID
}

// SetSeen changes the \Seen flag of an INBOX message, as another client would.
func (s *Server) SetSeen(uid domain.UID, seen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.folders[Inbox].messages {
		if m.UID == uid {
			m.Seen = seen
		}
	}
}

// SetUidValidity simulates a server side folder rebuild.
func (s *Server) SetUidValidity(folderName string, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folderLocked(folderName).uidValidity = v
}

// Messages returns a copy of the current folder content.
func (s *Server) Messages(folderName string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[folderName]
	if !ok {
		return nil
	}
	out := make([]Message, len(f.messages))
	for i, m := range f.messages {
		out[i] = *m
	}
	return out
}

func (s *Server) folderLocked(name string) *folder {
	f, ok := s.folders[name]
	if !ok {
		f = &folder{uidValidity: 1, nextUID: 1}
		s.folders[name] = f
	}
	return f
}

func (s *Server) record(call string) {
	s.Calls = append(s.Calls, call)
}

func (s *Server) selectedLocked() (*folder, error) {
	f, ok := s.folders[s.selected]
	if !ok {
		return nil, errors.New("no folder selected")
	}
	return f, nil
}

func (s *Server) writableLocked() (*folder, error) {
	f, err := s.selectedLocked()
	if err != nil {
		return nil, err
	}
	if s.readOnly {
		return nil, fmt.Errorf("%s selected read-only", s.selected)
	}
	return f, nil
}

func (s *Server) Select(name string, readOnly bool) (*domain.MailboxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("select %s ro=%v", name, readOnly))

	f, ok := s.folders[name]
	if !ok {
		return nil, fmt.Errorf("no such folder %s", name)
	}
	s.selected = name
	s.readOnly = readOnly
	return statusOf(name, f), nil
}

func (s *Server) Status(name string) (*domain.MailboxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("status " + name)

	f, ok := s.folders[name]
	if !ok {
		return nil, fmt.Errorf("no such folder %s", name)
	}
	return statusOf(name, f), nil
}

func statusOf(name string, f *folder) *domain.MailboxStatus {
	unseen := uint32(0)
	for _, m := range f.messages {
		if !m.Seen {
			unseen++
		}
	}
	return &domain.MailboxStatus{
		Name:        name,
		UidValidity: f.uidValidity,
		Messages:    uint32(len(f.messages)),
		Unseen:      unseen,
	}
}

func (s *Server) ListUids() ([]domain.UID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("search")

	f, err := s.selectedLocked()
	if err != nil {
		return nil, err
	}
	uids := make([]domain.UID, len(f.messages))
	for i, m := range f.messages {
		uids[i] = m.UID
	}
	return uids, nil
}

// lookupLocked returns messages and their sequence numbers in folder order.
func lookupLocked(f *folder, uids []domain.UID) ([]*Message, []domain.SeqNum) {
	wanted := map[domain.UID]bool{}
	for _, uid := range uids {
		wanted[uid] = true
	}
	msgs, seqs := []*Message{}, []domain.SeqNum{}
	for i, m := range f.messages {
		if wanted[m.UID] {
			msgs = append(msgs, m)
			seqs = append(seqs, domain.SeqNum(i+1))
		}
	}
	return msgs, seqs
}

func (s *Server) FetchHeaders(uids []domain.UID) ([]*domain.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("fetch headers %d", len(uids)))

	if s.FailFetchHeaders != nil {
		if err := s.FailFetchHeaders(uids); err != nil {
			return nil, err
		}
	}
	f, err := s.selectedLocked()
	if err != nil {
		return nil, err
	}

	msgs, seqs := lookupLocked(f, uids)
	records := []*domain.MessageRecord{}
	for i, m := range msgs {
		info, err := mail.ParseHeaders([]byte(m.rawHeader()))
		if err != nil {
			continue
		}
		records = append(records, &domain.MessageRecord{
			SessionID:   seqs[i],
			UID:         m.UID,
			SenderEmail: info.SenderEmail,
			SenderName:  info.SenderName,
			Subject:     info.Subject,
			Date:        info.Date,
			Unread:      !m.Seen,
		})
	}
	return records, nil
}

func (s *Server) FetchUnread(uids []domain.UID) (map[domain.UID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("fetch flags %d", len(uids)))

	if s.FailFetchUnread != nil {
		if err := s.FailFetchUnread(uids); err != nil {
			return nil, err
		}
	}
	f, err := s.selectedLocked()
	if err != nil {
		return nil, err
	}

	msgs, _ := lookupLocked(f, uids)
	unread := make(map[domain.UID]bool, len(msgs))
	for _, m := range msgs {
		unread[m.UID] = !m.Seen
	}
	return unread, nil
}

func (s *Server) FetchBodies(uids []domain.UID, timeout time.Duration) (map[domain.UID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("fetch bodies %d", len(uids)))

	if s.FailFetchBodies != nil {
		if err := s.FailFetchBodies(uids, timeout); err != nil {
			return nil, err
		}
	}
	f, err := s.selectedLocked()
	if err != nil {
		return nil, err
	}

	msgs, _ := lookupLocked(f, uids)
	bodies := map[domain.UID]string{}
	for _, m := range msgs {
		bodies[m.UID] = m.raw()
	}
	return bodies, nil
}

func (s *Server) FlagDeleted(uids []domain.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("store deleted %d", len(uids)))

	if s.FailFlag != nil {
		if err := s.FailFlag(uids); err != nil {
			return err
		}
	}
	f, err := s.writableLocked()
	if err != nil {
		return err
	}

	msgs, _ := lookupLocked(f, uids)
	for _, m := range msgs {
		m.Deleted = true
	}
	return nil
}

func (s *Server) ExpungeReady() (error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UidPlus {
		return nil, nil
	}
	f, err := s.selectedLocked()
	if err != nil {
		return nil, err
	}
	for _, m := range f.messages {
		if m.Deleted {
			return imapconnection.ItemsWithDeletedFlagPresent, nil
		}
	}
	return nil, nil
}

func (s *Server) Expunge(uids []domain.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("expunge %d", len(uids)))

	if s.FailExpunge != nil {
		if err := s.FailExpunge(uids); err != nil {
			return err
		}
	}
	f, err := s.writableLocked()
	if err != nil {
		return err
	}

	target := map[domain.UID]bool{}
	for _, uid := range uids {
		target[uid] = true
	}

	kept := f.messages[:0]
	removed := []*Message{}
	for _, m := range f.messages {
		if m.Deleted && (!s.UidPlus || target[m.UID]) {
			removed = append(removed, m)
			continue
		}
		kept = append(kept, m)
	}
	f.messages = kept

	if s.LoseOnExpunge && s.selected == Inbox {
		if all, ok := s.folders[AllMail]; ok && len(removed) <= len(all.messages) {
			all.messages = all.messages[:len(all.messages)-len(removed)]
		}
	}
	return nil
}

func (s *Server) Copy(uids []domain.UID, folderName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(fmt.Sprintf("copy %d %s", len(uids), folderName))

	if s.FailCopy != nil {
		if err := s.FailCopy(uids, folderName); err != nil {
			return err
		}
	}
	src, err := s.selectedLocked()
	if err != nil {
		return err
	}
	dst, ok := s.folders[folderName]
	if !ok {
		return fmt.Errorf("no such folder %s", folderName)
	}

	msgs, _ := lookupLocked(src, uids)
	for _, m := range msgs {
		c := *m
		c.Deleted = false
		c.UID = dst.nextUID
		dst.nextUID++
		dst.messages = append(dst.messages, &c)
	}
	return nil
}

func (s *Server) Create(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create " + name)

	if s.FailCreate != nil {
		if err := s.FailCreate(name); err != nil {
			return err
		}
	}
	if _, ok := s.folders[name]; ok {
		return fmt.Errorf("folder %s exists", name)
	}
	s.folders[name] = &folder{uidValidity: 1, nextUID: 1}
	return nil
}

func (s *Server) ListFolders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := []string{}
	for name := range s.folders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Server) LabelBased() bool {
	return s.LabelMode
}

func (s *Server) Close() error {
	return nil
}

var _ domain.ImapConnector = &Server{}
