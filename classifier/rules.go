// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

const DefaultReason = "no rule matched"

// Rule matches a message when any of its criteria matches. All comparisons
// are case-insensitive.
type Rule struct {
	Name     string
	Category domain.Category
	Reason   string

	// Exact sender addresses and sender domains.
	Senders []string
	Domains []string
	// Substrings of the sender domain or the end of it (".gov.uk").
	DomainKeywords []string
	DomainSuffixes []string
	// Substrings of the sender address, display name, subject or body preview.
	SenderKeywords  []string
	NameKeywords    []string
	SubjectKeywords []string
	BodyKeywords    []string
	// Regular expressions over the subject.
	SubjectPatterns []string
}

// RuleSet is the content of a rule file. Rules are evaluated in order, the
// first match wins. Messages matching no rule get DefaultCategory.
type RuleSet struct {
	DefaultCategory domain.Category
	DefaultReason   string
	Rules           []Rule
}

type compiledRule struct {
	Rule
	senders  map[string]bool
	domains  map[string]bool
	patterns []*regexp.Regexp
}

type RulesClassifier struct {
	rules           []*compiledRule
	defaultCategory domain.Category
	defaultReason   string

	l *logrus.Logger
}

func ReadRules(filename string) (*RuleSet, error) {
	rules := &RuleSet{
		DefaultCategory: domain.CategoryArchive,
		DefaultReason:   DefaultReason,
	}
	_, err := toml.DecodeFile(filename, rules)
	if err != nil {
		return nil, fmt.Errorf("could not read rule file: %w", err)
	}
	return rules, nil
}

func NewRulesClassifier(rules *RuleSet) (*RulesClassifier, error) {
	if strings.TrimSpace(string(rules.DefaultCategory)) == "" {
		return nil, errors.New("DefaultCategory must not be empty, set it to the category of messages no rule matches")
	}

	rc := &RulesClassifier{
		defaultCategory: rules.DefaultCategory,
		defaultReason:   rules.DefaultReason,
		l:               log.Logger(log.LOG_CLASSIFIER),
	}
	for i, r := range rules.Rules {
		if strings.TrimSpace(string(r.Category)) == "" {
			return nil, fmt.Errorf("rule %d (%s) has no Category", i+1, r.Name)
		}

		compiled := &compiledRule{
			Rule:    r,
			senders: lowerSet(r.Senders),
			domains: lowerSet(r.Domains),
		}
		compiled.DomainKeywords = lowerAll(r.DomainKeywords)
		compiled.DomainSuffixes = lowerAll(r.DomainSuffixes)
		compiled.SenderKeywords = lowerAll(r.SenderKeywords)
		compiled.NameKeywords = lowerAll(r.NameKeywords)
		compiled.SubjectKeywords = lowerAll(r.SubjectKeywords)
		compiled.BodyKeywords = lowerAll(r.BodyKeywords)
		for _, p := range r.SubjectPatterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s) has an invalid subject pattern %q: %w", i+1, r.Name, p, err)
			}
			compiled.patterns = append(compiled.patterns, re)
		}
		rc.rules = append(rc.rules, compiled)
	}

	rc.l.WithFields(logrus.Fields{"rules": len(rc.rules), "default": rc.defaultCategory}).Debug("Rules loaded")
	return rc, nil
}

func (rc *RulesClassifier) Classify(msg *domain.MessageRecord) *domain.Classification {
	email := strings.ToLower(msg.SenderEmail)
	senderDomain := mail.SenderDomain(email)
	name := strings.ToLower(msg.SenderName)
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.BodyPreview)

	for _, r := range rc.rules {
		if r.matches(email, senderDomain, name, subject, body) {
			reason := r.Reason
			if reason == "" {
				reason = r.Name
			}
			return &domain.Classification{UID: msg.UID, Category: r.Category, Reason: reason}
		}
	}

	return &domain.Classification{UID: msg.UID, Category: rc.defaultCategory, Reason: rc.defaultReason}
}

func (r *compiledRule) matches(email, senderDomain, name, subject, body string) bool {
	if r.senders[email] || r.domains[senderDomain] {
		return true
	}
	for _, suffix := range r.DomainSuffixes {
		if strings.HasSuffix(senderDomain, suffix) {
			return true
		}
	}
	if containsAny(senderDomain, r.DomainKeywords) ||
		containsAny(email, r.SenderKeywords) ||
		containsAny(name, r.NameKeywords) ||
		containsAny(subject, r.SubjectKeywords) ||
		containsAny(body, r.BodyKeywords) {
		return true
	}
	for _, re := range r.patterns {
		if re.MatchString(subject) {
			return true
		}
	}
	return false
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func lowerSet(values []string) map[string]bool {
	set := map[string]bool{}
	for _, v := range lowerAll(values) {
		set[v] = true
	}
	return set
}
