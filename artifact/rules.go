// SPDX-License-Identifier: GPL-3.0-or-later
package artifact

import (
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/CrawX/go-imap-triage/domain"
)

// Rules is the content of archive_rules.json and shared_rules.json.
type Rules struct {
	ArchiveSenders []string `json:"archive_senders"`
	ArchiveDomains []string `json:"archive_domains"`
}

// LoadSharedRules reads the shared rule file. A missing file yields empty
// rules.
func LoadSharedRules(path string) (*Rules, error) {
	rules := &Rules{ArchiveSenders: []string{}, ArchiveDomains: []string{}}
	err := ReadJSON(path, rules)
	if errors.Is(err, os.ErrNotExist) {
		return rules, nil
	}
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func SaveSharedRules(path string, rules *Rules) error {
	return WriteJSON(path, rules)
}

// Senders returns the lower-cased union of the archive senders of all rules,
// sorted.
func Senders(rules ...*Rules) []string {
	return union(func(r *Rules) []string { return r.ArchiveSenders }, rules)
}

func Domains(rules ...*Rules) []string {
	return union(func(r *Rules) []string { return r.ArchiveDomains }, rules)
}

func union(field func(*Rules) []string, rules []*Rules) []string {
	set := map[string]bool{}
	for _, r := range rules {
		if r == nil {
			continue
		}
		for _, v := range field(r) {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				set[v] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Combine merges rule sets into one.
func Combine(rules ...*Rules) *Rules {
	return &Rules{ArchiveSenders: Senders(rules...), ArchiveDomains: Domains(rules...)}
}

// Remaining returns the messages not matched by rules, in input order.
func Remaining(messages []*domain.MessageRecord, rules *Rules) []*domain.MessageRecord {
	remaining := []*domain.MessageRecord{}
	for _, m := range messages {
		if !rules.Matches(m.SenderEmail) {
			remaining = append(remaining, m)
		}
	}
	return remaining
}

// Matches reports whether address is an archive sender or belongs to an
// archive domain.
func (r *Rules) Matches(address string) bool {
	address = strings.ToLower(address)
	for _, s := range r.ArchiveSenders {
		if strings.ToLower(s) == address {
			return true
		}
	}
	for _, d := range r.ArchiveDomains {
		if strings.HasSuffix(address, "@"+strings.ToLower(strings.TrimPrefix(d, "@"))) {
			return true
		}
	}
	return false
}

// Promotion is a sender found in the archive rules of several accounts.
type Promotion struct {
	Sender   string
	Accounts []string
}

// MergeRules promotes senders listed in the archive rules of at least two
// accounts into shared. It returns the promotions, most widespread first;
// shared is updated in place with a sorted sender list.
func MergeRules(accountRules map[string]*Rules, shared *Rules) []Promotion {
	existing := map[string]bool{}
	for _, s := range shared.ArchiveSenders {
		existing[strings.ToLower(s)] = true
	}

	accounts := make([]string, 0, len(accountRules))
	for account := range accountRules {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	seenIn := map[string][]string{}
	for _, account := range accounts {
		for _, sender := range Senders(accountRules[account]) {
			seenIn[sender] = append(seenIn[sender], account)
		}
	}

	promotions := []Promotion{}
	for sender, accts := range seenIn {
		if len(accts) >= 2 && !existing[sender] {
			promotions = append(promotions, Promotion{Sender: sender, Accounts: accts})
		}
	}
	sort.Slice(promotions, func(i, j int) bool {
		if len(promotions[i].Accounts) != len(promotions[j].Accounts) {
			return len(promotions[i].Accounts) > len(promotions[j].Accounts)
		}
		return promotions[i].Sender < promotions[j].Sender
	})
	if len(promotions) == 0 {
		return promotions
	}

	merged := map[string]bool{}
	for _, s := range shared.ArchiveSenders {
		merged[s] = true
	}
	for _, p := range promotions {
		merged[p.Sender] = true
	}
	shared.ArchiveSenders = make([]string, 0, len(merged))
	for s := range merged {
		shared.ArchiveSenders = append(shared.ArchiveSenders, s)
	}
	sort.Strings(shared.ArchiveSenders)
	if shared.ArchiveDomains == nil {
		shared.ArchiveDomains = []string{}
	}
	return promotions
}
