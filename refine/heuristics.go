// SPDX-License-Identifier: GPL-3.0-or-later
package refine

import (
	"strings"

	"github.com/CrawX/go-imap-triage/domain"
)

var (
	notificationSenders  = []string{"noreply", "no-reply", "notify", "notification", "alerts", "mailer-daemon"}
	notificationSubjects = []string{"notification", "alert", "reminder", "update", "digest"}

	receiptSubjects = []string{"receipt", "confirmation", "order", "invoice", "payment", "shipped", "delivered"}

	securitySubjects = []string{"security alert", "sign-in", "signin", "login", "password", "verification code", "2fa", "two-factor"}

	newsletterSubjects = []string{"newsletter", "digest", "weekly", "monthly"}
	newsletterReasons  = []string{"marketing", "newsletter", "promotional"}
	newsletterSenders  = []string{"newsletter", "digest", "marketing", "campaign", "promo"}

	financialReasons  = []string{"financial", "tax", "hmrc", "bank", "accountant", "invoice"}
	financialSubjects = []string{"tax", "hmrc", "p60", "p45", "self assessment", "statement", "bank"}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func lowerFields(m *domain.ClassifiedMessage) (sender, subject, reason string) {
	return strings.ToLower(m.SenderEmail), strings.ToLower(m.Subject), strings.ToLower(m.Reason)
}

func isNotificationLike(m *domain.ClassifiedMessage) bool {
	sender, subject, _ := lowerFields(m)
	return containsAny(sender, notificationSenders) || containsAny(subject, notificationSubjects)
}

func isReceiptLike(m *domain.ClassifiedMessage) bool {
	_, subject, _ := lowerFields(m)
	return containsAny(subject, receiptSubjects)
}

func isSecurityAlert(m *domain.ClassifiedMessage) bool {
	_, subject, _ := lowerFields(m)
	return containsAny(subject, securitySubjects)
}

func isNewsletterLike(m *domain.ClassifiedMessage) bool {
	sender, subject, reason := lowerFields(m)
	return containsAny(subject, newsletterSubjects) || containsAny(reason, newsletterReasons) || containsAny(sender, newsletterSenders)
}

// isFinancial marks records that are kept regardless of age, whatever their
// category.
func isFinancial(m *domain.ClassifiedMessage) bool {
	_, subject, reason := lowerFields(m)
	return containsAny(reason, financialReasons) || containsAny(subject, financialSubjects)
}
