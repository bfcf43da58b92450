// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import "github.com/CrawX/go-imap-triage/domain"

const UnclassifiedReason = "unclassified"

type ConcurrentClassifier struct {
	domain.Classifier
}

// ClassifyAll classifies records with at most concurrency calls in flight.
// A classifier returning nil is asked once more, a second nil yields an empty
// category so the message is kept.
func (cc *ConcurrentClassifier) ClassifyAll(records []*domain.MessageRecord, concurrency int) []*domain.ClassifiedMessage {
	if concurrency < 1 {
		concurrency = 1
	}

	semaphore := make(chan bool, concurrency)
	results := make([]*domain.ClassifiedMessage, len(records))
	for i := 0; i < len(records); i++ {
		semaphore <- true
		go func(index int) {
			c := cc.Classify(records[index])
			if c == nil {
				c = cc.Classify(records[index])
			}
			if c == nil {
				c = &domain.Classification{UID: records[index].UID, Reason: UnclassifiedReason}
			}
			results[index] = &domain.ClassifiedMessage{
				MessageRecord: *records[index],
				Category:      c.Category,
				Reason:        c.Reason,
			}
			<-semaphore
		}(i)
	}

	for i := 0; i < concurrency; i++ {
		semaphore <- true
	}

	return results
}
