// SPDX-License-Identifier: GPL-3.0-or-later
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/sirupsen/logrus"
)

type Phase string

const (
	Metadata Phase = "metadata"
	Bodies   Phase = "bodies"
)

func FileName(phase Phase) string {
	return "checkpoint_" + string(phase) + ".json"
}

// Checkpoint is the snapshot of a partially completed fetch phase. Only UIDs
// are stored, they stay meaningful as long as UidValidity matches the mailbox.
type Checkpoint struct {
	Phase       Phase                   `json:"phase"`
	UidValidity uint32                  `json:"uidvalidity"`
	Total       int                     `json:"total"`
	Messages    []*domain.MessageRecord `json:"messages,omitempty"`
	Bodies      map[domain.UID]string   `json:"bodies,omitempty"`
	WrittenAt   time.Time               `json:"written_at"`
}

// Count is the number of completed items in the snapshot.
func (c *Checkpoint) Count() int {
	if c.Phase == Bodies {
		return len(c.Bodies)
	}
	return len(c.Messages)
}

type Store struct {
	dir string
	now func() time.Time
	l   *logrus.Logger
}

func NewStore(dir string) *Store {
	return &Store{
		dir: dir,
		now: time.Now,
		l:   log.Logger(log.LOG_CHECKPOINT),
	}
}

func (s *Store) Path(phase Phase) string {
	return filepath.Join(s.dir, FileName(phase))
}

// Load returns the stored checkpoint for phase or nil if there is none. An
// unreadable snapshot is reported and treated as absent.
func (s *Store) Load(phase Phase) (*Checkpoint, error) {
	path := s.Path(phase)
	data, err := ioutil.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read checkpoint %s: %w", path, err)
	}

	cp := &Checkpoint{}
	err = json.Unmarshal(data, cp)
	if err != nil || cp.Phase != phase {
		s.l.WithFields(logrus.Fields{"file": path, "error": err}).Warn("Ignoring unreadable checkpoint")
		return nil, nil
	}

	return cp, nil
}

func (s *Store) Clear(phase Phase) error {
	err := os.Remove(s.Path(phase))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not remove checkpoint: %w", err)
	}
	return nil
}

func (s *Store) write(cp *Checkpoint) error {
	cp.WrittenAt = s.now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("could not encode checkpoint: %w", err)
	}

	err = WriteAtomic(s.Path(cp.Phase), data)
	if err != nil {
		return fmt.Errorf("could not write checkpoint: %w", err)
	}
	return nil
}

// Open starts a journal for phase, resuming the stored snapshot when it was
// taken against the same UIDVALIDITY.
func (s *Store) Open(phase Phase, uidValidity uint32, total int) (*Journal, error) {
	cp, err := s.Load(phase)
	if err != nil {
		return nil, err
	}

	baseLogger := s.l.WithFields(logrus.Fields{"phase": phase, "uidvalidity": uidValidity})
	if cp != nil && cp.UidValidity != uidValidity {
		baseLogger.WithFields(logrus.Fields{"stored": cp.UidValidity}).Warn("UIDVALIDITY changed, discarding checkpoint")
		cp = nil
	}
	if cp == nil {
		cp = &Checkpoint{Phase: phase, UidValidity: uidValidity}
	} else {
		baseLogger.WithFields(logrus.Fields{"cached": cp.Count()}).Info("Resuming from checkpoint")
	}
	cp.Total = total
	if cp.Bodies == nil {
		cp.Bodies = map[domain.UID]string{}
	}

	j := &Journal{
		store:    s,
		snapshot: cp,
		done:     map[domain.UID]bool{},
		resumed:  cp.Count(),
	}
	for _, m := range cp.Messages {
		j.done[m.UID] = true
	}
	for uid := range cp.Bodies {
		j.done[uid] = true
	}

	return j, nil
}

// Journal accumulates fetched items as append-only intent and turns them into
// a new whole snapshot on Commit. The file on disk is always the last
// committed snapshot.
type Journal struct {
	store    *Store
	snapshot *Checkpoint

	pendingMessages []*domain.MessageRecord
	pendingBodies   map[domain.UID]string
	pendingUnread   map[domain.UID]bool

	done    map[domain.UID]bool
	resumed int
}

func (j *Journal) Has(uid domain.UID) bool {
	return j.done[uid]
}

// Missing returns the uids not yet recorded, in input order.
func (j *Journal) Missing(uids []domain.UID) []domain.UID {
	missing := []domain.UID{}
	for _, uid := range uids {
		if !j.done[uid] {
			missing = append(missing, uid)
		}
	}
	return missing
}

// Resumed is the number of items restored from disk when the journal opened.
func (j *Journal) Resumed() int {
	return j.resumed
}

func (j *Journal) AddMessages(records []*domain.MessageRecord) {
	for _, r := range records {
		if j.done[r.UID] {
			continue
		}
		j.done[r.UID] = true
		j.pendingMessages = append(j.pendingMessages, r)
	}
}

// SetUnread records a changed unread state for already recorded messages and
// returns how many of them differ. It is written by the next Commit.
func (j *Journal) SetUnread(unread map[domain.UID]bool) int {
	changed := 0
	for _, r := range j.Messages() {
		u, ok := unread[r.UID]
		if !ok || u == r.Unread {
			continue
		}
		if j.pendingUnread == nil {
			j.pendingUnread = map[domain.UID]bool{}
		}
		j.pendingUnread[r.UID] = u
		changed++
	}
	return changed
}

func (j *Journal) withUnread(records []*domain.MessageRecord) []*domain.MessageRecord {
	out := make([]*domain.MessageRecord, len(records))
	for i, r := range records {
		u, ok := j.pendingUnread[r.UID]
		if ok && u != r.Unread {
			updated := *r
			updated.Unread = u
			r = &updated
		}
		out[i] = r
	}
	return out
}

func (j *Journal) AddBodies(bodies map[domain.UID]string) {
	for uid, body := range bodies {
		if j.done[uid] {
			continue
		}
		if j.pendingBodies == nil {
			j.pendingBodies = map[domain.UID]string{}
		}
		j.done[uid] = true
		j.pendingBodies[uid] = body
	}
}

// Commit writes a new snapshot containing everything added so far. The
// in-memory snapshot only advances once the write succeeded.
func (j *Journal) Commit() error {
	next := &Checkpoint{
		Phase:       j.snapshot.Phase,
		UidValidity: j.snapshot.UidValidity,
		Total:       j.snapshot.Total,
		Messages:    make([]*domain.MessageRecord, 0, len(j.snapshot.Messages)+len(j.pendingMessages)),
		Bodies:      make(map[domain.UID]string, len(j.snapshot.Bodies)+len(j.pendingBodies)),
	}
	next.Messages = append(append(next.Messages, j.snapshot.Messages...), j.pendingMessages...)
	next.Messages = j.withUnread(next.Messages)
	for uid, body := range j.snapshot.Bodies {
		next.Bodies[uid] = body
	}
	for uid, body := range j.pendingBodies {
		next.Bodies[uid] = body
	}

	err := j.store.write(next)
	if err != nil {
		return err
	}

	j.snapshot = next
	j.pendingMessages = nil
	j.pendingBodies = nil
	j.pendingUnread = nil
	return nil
}

// Messages returns committed and pending records in insertion order.
func (j *Journal) Messages() []*domain.MessageRecord {
	out := make([]*domain.MessageRecord, 0, len(j.snapshot.Messages)+len(j.pendingMessages))
	out = append(out, j.snapshot.Messages...)
	return j.withUnread(append(out, j.pendingMessages...))
}

func (j *Journal) Bodies() map[domain.UID]string {
	out := make(map[domain.UID]string, len(j.snapshot.Bodies)+len(j.pendingBodies))
	for uid, body := range j.snapshot.Bodies {
		out[uid] = body
	}
	for uid, body := range j.pendingBodies {
		out[uid] = body
	}
	return out
}

func (j *Journal) Count() int {
	return len(j.done)
}
