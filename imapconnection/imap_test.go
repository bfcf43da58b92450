// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"strings"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestFetchItems_PeekOnly(t *testing.T) {
	tests := []struct {
		name     string
		items    []imap.FetchItem
		section  string
		expected []imap.FetchItem
	}{
		{"headers", headerFetchItems, "HEADER.FIELDS", []imap.FetchItem{imap.FetchFlags, imap.FetchUid}},
		{"bodies", bodyFetchItems, "BODY.PEEK[]", []imap.FetchItem{imap.FetchUid}},
		{"flags", flagFetchItems, "", []imap.FetchItem{imap.FetchFlags, imap.FetchUid}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sections := []string{}
			for _, item := range tc.items {
				s := string(item)
				assert.False(t, strings.HasPrefix(s, "BODY["), "%s would set \\Seen", s)
				assert.False(t, strings.HasPrefix(s, string(imap.FetchRFC822)), "%s would set \\Seen", s)
				if strings.HasPrefix(s, "BODY.PEEK[") {
					sections = append(sections, s)
				}
			}

			if tc.section == "" {
				assert.Empty(t, sections)
			} else {
				assert.Len(t, sections, 1)
				assert.Contains(t, sections[0], tc.section)
			}
			assert.Subset(t, tc.items, tc.expected)
		})
	}
}

func TestFetchSections_Peek(t *testing.T) {
	assert.True(t, headerSection.Peek)
	assert.True(t, bodySection.Peek)
	assert.True(t, strings.HasPrefix(string(headerSection.FetchItem()), "BODY.PEEK[HEADER.FIELDS"))
	assert.True(t, strings.HasPrefix(string(bodySection.FetchItem()), "BODY.PEEK[]"))
}
