// SPDX-License-Identifier: GPL-3.0-or-later
package spamassassin

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/domain/mocks"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	result *domain.SpamResult
	seen   []byte
}

func (f *fakeChecker) Check(rawMail []byte) *domain.SpamResult {
	f.seen = rawMail
	return f.result
}

func TestClassifier(t *testing.T) {
	msg := &domain.MessageRecord{
		UID:         9,
		SenderEmail: "deals@shop.example",
		SenderName:  "Shop",
		Subject:     "Win big",
		Date:        time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		BodyPreview: "click here",
	}
	fallbackResult := &domain.Classification{UID: 9, Category: domain.CategoryReference, Reason: "rule"}

	tests := []struct {
		name     string
		result   *domain.SpamResult
		fallback bool
		category domain.Category
	}{
		{"spam is archived", &domain.SpamResult{IsSpam: true, Score: 7.5}, false, domain.CategoryArchive},
		{"ham goes to rules", &domain.SpamResult{Score: 0.3}, true, domain.CategoryReference},
		{"spamd error goes to rules", &domain.SpamResult{Error: errors.New("connection refused")}, true, domain.CategoryReference},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			fallback := mocks.NewMockClassifier(ctrl)
			if test.fallback {
				fallback.EXPECT().Classify(gomock.Eq(msg)).Return(fallbackResult)
			}
			checker := &fakeChecker{result: test.result}

			c := NewClassifier(checker, fallback).Classify(msg)
			assert.Equal(t, test.category, c.Category)
			assert.Equal(t, domain.UID(9), c.UID)
			if !test.fallback {
				assert.Equal(t, "spamassassin score 7.5", c.Reason)
			}

			raw := string(checker.seen)
			assert.True(t, strings.HasPrefix(raw, "From: \"Shop\" <deals@shop.example>\r\n"))
			assert.Contains(t, raw, "Subject: Win big\r\n")
			assert.Contains(t, raw, "Date: Fri, 01 Mar 2024 10:00:00 +0000\r\n")
			assert.True(t, strings.HasSuffix(raw, "\r\n\r\nclick here"))
		})
	}
}
