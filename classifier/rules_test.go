// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/stretchr/testify/assert"
)

const testRules = `
DefaultCategory = "archive"
DefaultReason = "bulk mail"

[[Rules]]
Name = "family"
Category = "reference"
Senders = ["Mum@Example.com"]

[[Rules]]
Name = "school"
Category = "reference"
Reason = "school"
Domains = ["school.example.org"]
DomainSuffixes = [".gov.uk"]

[[Rules]]
Name = "money"
Category = "urgent"
Reason = "financial"
SubjectKeywords = ["invoice", "tax"]
NameKeywords = ["bank"]

[[Rules]]
Name = "tickets"
Category = "action_needed"
SubjectPatterns = ["^ticket #\\d+"]
BodyKeywords = ["please reply"]

[[Rules]]
Name = "marketing"
Category = "archive"
Reason = "marketing"
SenderKeywords = ["noreply", "newsletter"]
DomainKeywords = ["mailchimp"]
`

func writeRules(t *testing.T, content string) string {
	dir, err := ioutil.TempDir("", "rules")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "rules.toml")
	assert.NoError(t, ioutil.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRulesClassifier(t *testing.T) {
	rules, err := ReadRules(writeRules(t, testRules))
	assert.NoError(t, err)
	rc, err := NewRulesClassifier(rules)
	assert.NoError(t, err)

	tests := []struct {
		name     string
		msg      domain.MessageRecord
		category domain.Category
		reason   string
	}{
		{"exact sender, case-insensitive", domain.MessageRecord{SenderEmail: "mum@EXAMPLE.com"}, domain.CategoryReference, "family"},
		{"domain", domain.MessageRecord{SenderEmail: "office@school.example.org"}, domain.CategoryReference, "school"},
		{"domain suffix", domain.MessageRecord{SenderEmail: "noreply@hmrc.gov.uk"}, domain.CategoryReference, "school"},
		{"subject keyword", domain.MessageRecord{SenderEmail: "billing@shop.example", Subject: "Your INVOICE 42"}, domain.CategoryUrgent, "financial"},
		{"name keyword", domain.MessageRecord{SenderEmail: "x@y.example", SenderName: "Big Bank plc"}, domain.CategoryUrgent, "financial"},
		{"subject pattern", domain.MessageRecord{SenderEmail: "x@y.example", Subject: "Ticket #123 updated"}, domain.CategoryActionNeeded, "tickets"},
		{"body keyword", domain.MessageRecord{SenderEmail: "x@y.example", BodyPreview: "Could you please reply by Friday"}, domain.CategoryActionNeeded, "tickets"},
		{"sender keyword", domain.MessageRecord{SenderEmail: "noreply@shop.example"}, domain.CategoryArchive, "marketing"},
		{"domain keyword", domain.MessageRecord{SenderEmail: "bounce@mail.mailchimpapp.net"}, domain.CategoryArchive, "marketing"},
		{"first match wins", domain.MessageRecord{SenderEmail: "newsletter@school.example.org"}, domain.CategoryReference, "school"},
		{"default", domain.MessageRecord{SenderEmail: "friend@example.net", Subject: "hello"}, domain.CategoryArchive, "bulk mail"},
	}

	for i, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			msg := test.msg
			msg.UID = domain.UID(i + 1)
			c := rc.Classify(&msg)
			assert.Equal(t, msg.UID, c.UID)
			assert.Equal(t, test.category, c.Category)
			assert.Equal(t, test.reason, c.Reason)
		})
	}
}

func TestRulesClassifier_DefaultPolicy(t *testing.T) {
	rules, err := ReadRules(writeRules(t, `DefaultCategory = "reference"`))
	assert.NoError(t, err)
	assert.Equal(t, DefaultReason, rules.DefaultReason)

	rc, err := NewRulesClassifier(rules)
	assert.NoError(t, err)
	assert.Equal(t, domain.CategoryReference, rc.Classify(&domain.MessageRecord{SenderEmail: "a@b.example"}).Category)
}

func TestNewRulesClassifier_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		rules RuleSet
	}{
		{"empty default", RuleSet{DefaultCategory: " "}},
		{"rule without category", RuleSet{DefaultCategory: domain.CategoryArchive, Rules: []Rule{{Name: "x", Senders: []string{"a@b"}}}}},
		{"invalid pattern", RuleSet{DefaultCategory: domain.CategoryArchive, Rules: []Rule{{Name: "x", Category: domain.CategoryArchive, SubjectPatterns: []string{"("}}}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rules := test.rules
			_, err := NewRulesClassifier(&rules)
			assert.Error(t, err)
		})
	}
}

func TestReadRules_MissingFile(t *testing.T) {
	_, err := ReadRules(filepath.Join(os.TempDir(), "does-not-exist-rules.toml"))
	assert.Error(t, err)
}
