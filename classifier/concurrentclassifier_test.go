// SPDX-License-Identifier: GPL-3.0-or-later
package classifier

import (
	"sync"
	"testing"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/domain/mocks"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
)

func Test_ClassifyAllConcurrent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	classifier := mocks.NewMockClassifier(ctrl)

	mail1 := &domain.MessageRecord{UID: 1, SenderEmail: "a@example.com"}
	mail2 := &domain.MessageRecord{UID: 2, SenderEmail: "b@example.com"}
	mail3 := &domain.MessageRecord{UID: 3, SenderEmail: "c@example.com"}

	wg := &sync.WaitGroup{}
	wg.Add(3)

	// Mail1 is classified right away
	classifier.EXPECT().Classify(gomock.Eq(mail1)).DoAndReturn(func(_ *domain.MessageRecord) *domain.Classification {
		wg.Done()
		wg.Wait()
		return &domain.Classification{UID: 1, Category: domain.CategoryArchive, Reason: "newsletter"}
	})

	// Mail2 yields nothing, the retry neither
	classifier.EXPECT().Classify(gomock.Eq(mail2)).DoAndReturn(func(_ *domain.MessageRecord) *domain.Classification {
		wg.Done()
		wg.Wait()
		return nil
	})
	classifier.EXPECT().Classify(gomock.Eq(mail2)).Return(nil)

	// Mail3 yields nothing, the retry is ok
	classifier.EXPECT().Classify(gomock.Eq(mail3)).DoAndReturn(func(_ *domain.MessageRecord) *domain.Classification {
		wg.Done()
		wg.Wait()
		return nil
	})
	classifier.EXPECT().Classify(gomock.Eq(mail3)).Return(&domain.Classification{UID: 3, Category: domain.CategoryUrgent})

	concurrentClassifier := ConcurrentClassifier{classifier}

	resultsChan := make(chan []*domain.ClassifiedMessage)
	go func() {
		resultsChan <- concurrentClassifier.ClassifyAll([]*domain.MessageRecord{mail1, mail2, mail3}, 3)
	}()

	timeoutChan := time.After(time.Millisecond * 50)
	select {
	case results := <-resultsChan:
		assert.Len(t, results, 3, "aggregated results should have a length of 3")
		assert.Equal(t, domain.UID(1), results[0].UID)
		assert.Equal(t, domain.CategoryArchive, results[0].Category, "mail1 should be classified")
		assert.Equal(t, "newsletter", results[0].Reason)
		assert.Equal(t, domain.Category(""), results[1].Category, "mail2 should stay unclassified after retry")
		assert.Equal(t, UnclassifiedReason, results[1].Reason)
		assert.Equal(t, domain.CategoryUrgent, results[2].Category, "mail3 should be ok after retry")
		assert.Equal(t, "c@example.com", results[2].SenderEmail)
	case <-timeoutChan:
		assert.Fail(t, "timeout when classifying mails concurrently")
	}
}

func Test_ClassifyAllEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	concurrentClassifier := ConcurrentClassifier{mocks.NewMockClassifier(ctrl)}
	assert.Empty(t, concurrentClassifier.ClassifyAll(nil, 0))
}
