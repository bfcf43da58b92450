// SPDX-License-Identifier: GPL-3.0-or-later
package archiver

import (
	"strings"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/mail"
)

// Identity is a message captured by an earlier session, usually from
// pass2_classification.json.
type Identity struct {
	UID         domain.UID
	SenderEmail string
	Subject     string
}

type identityKey struct {
	sender  string
	subject string
}

func keyOf(senderEmail, subject string) identityKey {
	return identityKey{
		sender:  strings.ToLower(strings.TrimSpace(senderEmail)),
		subject: strings.ToLower(mail.NormaliseSubject(subject)),
	}
}

// Target is the set of messages an archive run removes from INBOX. It is
// either sender based or identity based.
type Target struct {
	senders map[string]bool
	domains map[string]bool

	identities  map[domain.UID]identityKey
	tuples      map[identityKey]bool
	uidValidity uint32
}

// SenderTarget matches every message whose sender address is in senders or
// whose sender domain is in domains.
func SenderTarget(senders, domains []string) *Target {
	t := &Target{
		senders: map[string]bool{},
		domains: map[string]bool{},
	}
	for _, s := range senders {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			t.senders[s] = true
		}
	}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@")); d != "" {
			t.domains[d] = true
		}
	}
	return t
}

// IdentityTarget matches the archive identities captured under uidValidity.
// While the mailbox still has that UIDVALIDITY a message matches by UID, and
// only if its sender and normalised subject are unchanged. Otherwise it
// matches by sender and normalised subject, except for tuples that are shared
// with a message in keep.
func IdentityTarget(archive, keep []Identity, uidValidity uint32) *Target {
	t := &Target{
		identities:  map[domain.UID]identityKey{},
		tuples:      map[identityKey]bool{},
		uidValidity: uidValidity,
	}
	for _, id := range archive {
		key := keyOf(id.SenderEmail, id.Subject)
		t.identities[id.UID] = key
		t.tuples[key] = true
	}
	for _, id := range keep {
		delete(t.tuples, keyOf(id.SenderEmail, id.Subject))
	}
	return t
}

func (t *Target) Empty() bool {
	return len(t.senders) == 0 && len(t.domains) == 0 && len(t.identities) == 0
}

func (t *Target) Size() int {
	if t.identities != nil {
		return len(t.identities)
	}
	return len(t.senders) + len(t.domains)
}

// matcher returns the match function for a mailbox with the given
// UIDVALIDITY.
func (t *Target) matcher(uidValidity uint32) func(*domain.MessageRecord) bool {
	if t.identities == nil {
		return func(r *domain.MessageRecord) bool {
			email := strings.ToLower(r.SenderEmail)
			return t.senders[email] || t.domains[mail.SenderDomain(email)]
		}
	}

	if t.uidValidity != 0 && t.uidValidity == uidValidity {
		return func(r *domain.MessageRecord) bool {
			key, ok := t.identities[r.UID]
			return ok && key == keyOf(r.SenderEmail, r.Subject)
		}
	}

	return func(r *domain.MessageRecord) bool {
		return t.tuples[keyOf(r.SenderEmail, r.Subject)]
	}
}
