// SPDX-License-Identifier: GPL-3.0-or-later
package spamassassin

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/sirupsen/logrus"
	"github.com/teamwork/spamc"
)

const (
	SpamAssassinTimeout = 20 * time.Second
	SpamReason          = "spamassassin"
)

type SpamAssassin struct {
	client *spamc.Client
}

func NewSpamassassin(host string) (*SpamAssassin, error) {
	client := spamc.New(host, &net.Dialer{
		Timeout: SpamAssassinTimeout,
	})
	err := client.Ping(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("could not ping SpamAssassin: %w", err)
	}

	return &SpamAssassin{client: client}, nil
}

func (sa *SpamAssassin) Check(rawMail []byte) *domain.SpamResult {
	out, err := sa.client.Process(context.TODO(), bytes.NewReader(rawMail), nil)
	if err != nil {
		return &domain.SpamResult{Error: fmt.Errorf("could not check SpamAssassin: %w", err)}
	}

	err = out.Message.Close()
	if err != nil {
		return &domain.SpamResult{Error: fmt.Errorf("could not close response: %w", err)}
	}

	return &domain.SpamResult{
		IsSpam: out.IsSpam,
		Score:  out.Score,
	}
}

type spamChecker interface {
	Check(rawMail []byte) *domain.SpamResult
}

// Classifier archives whatever spamd reports as spam and hands everything
// else to Fallback. spamd only sees the fetched headers and body preview.
type Classifier struct {
	checker  spamChecker
	fallback domain.Classifier

	l *logrus.Logger
}

func NewClassifier(checker spamChecker, fallback domain.Classifier) *Classifier {
	return &Classifier{
		checker:  checker,
		fallback: fallback,
		l:        log.Logger(log.LOG_CLASSIFIER),
	}
}

func (c *Classifier) Classify(msg *domain.MessageRecord) *domain.Classification {
	result := c.checker.Check(rawMessage(msg))
	if result.Error != nil {
		c.l.WithFields(logrus.Fields{"uid": msg.UID, "error": result.Error}).Warn("Spam check failed, using rules only")
		return c.fallback.Classify(msg)
	}
	if result.IsSpam {
		return &domain.Classification{
			UID:      msg.UID,
			Category: domain.CategoryArchive,
			Reason:   fmt.Sprintf("%s score %.1f", SpamReason, result.Score),
		}
	}
	return c.fallback.Classify(msg)
}

func rawMessage(msg *domain.MessageRecord) []byte {
	b := &strings.Builder{}
	if msg.SenderName != "" {
		fmt.Fprintf(b, "From: %q <%s>\r\n", msg.SenderName, msg.SenderEmail)
	} else {
		fmt.Fprintf(b, "From: <%s>\r\n", msg.SenderEmail)
	}
	fmt.Fprintf(b, "Subject: %s\r\n", msg.Subject)
	if !msg.Date.IsZero() {
		fmt.Fprintf(b, "Date: %s\r\n", msg.Date.Format(time.RFC1123Z))
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.BodyPreview)
	return []byte(b.String())
}
