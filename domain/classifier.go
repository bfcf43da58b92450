// SPDX-License-Identifier: GPL-3.0-or-later
package domain

//go:generate mockgen -destination=mocks/classifier.go -package=mocks . Classifier

type Category string

const (
	CategoryArchive      = Category("archive")
	CategoryReference    = Category("reference")
	CategoryUrgent       = Category("urgent")
	CategoryActionNeeded = Category("action_needed")
)

type Classification struct {
	UID      UID
	Category Category
	Reason   string
}

// ClassifiedMessage is a MessageRecord enriched by a Classifier. It is the
// record format of pass2_classification.json.
type ClassifiedMessage struct {
	MessageRecord
	Category Category `json:"category"`
	Reason   string   `json:"reason,omitempty"`
}

type Classifier interface {
	Classify(msg *MessageRecord) *Classification
}

type SpamResult struct {
	IsSpam bool
	Score  float64
	Error  error
}
