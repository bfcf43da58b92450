// SPDX-License-Identifier: GPL-3.0-or-later
package refine

import (
	"time"

	"github.com/CrawX/go-imap-triage/domain"
)

// AnalysisReport is the content of phase2_analysis.json. It only depends on
// the classified records and the clock at analysis time.
type AnalysisReport struct {
	Account        string          `json:"account"`
	Generated      time.Time       `json:"generated"`
	UidValidity    uint32          `json:"uidvalidity"`
	TotalRemaining int             `json:"total_remaining"`
	SenderPatterns []SenderPattern `json:"sender_patterns"`
	TimeDecay      TimeDecay       `json:"time_decay_candidates"`
	Dedup          Dedup           `json:"dedup_candidates"`
	Summary        Summary         `json:"summary"`
	ArchiveIDs     []domain.UID    `json:"archive_uids"`
	KeepIDs        []domain.UID    `json:"keep_uids"`
}

type SenderPattern struct {
	Sender     string    `json:"sender"`
	SenderName string    `json:"sender_name"`
	Total      int       `json:"total"`
	Patterns   []Pattern `json:"patterns"`
}

// Pattern is a cluster of subjects sharing the same prefix key. Oldest and
// Newest are nil when no member has a date.
type Pattern struct {
	Pattern string     `json:"pattern"`
	Count   int        `json:"count"`
	Oldest  *time.Time `json:"oldest"`
	Newest  *time.Time `json:"newest"`
}

type DecayRef struct {
	UID         domain.UID `json:"uid"`
	SenderEmail string     `json:"from_email"`
	Subject     string     `json:"subject"`
	Date        time.Time  `json:"date"`
	DaysOld     int        `json:"days_old"`
}

type TimeDecay struct {
	NotificationsOver7d int              `json:"notifications_over_7d"`
	ReceiptsOver90d     int              `json:"receipts_over_90d"`
	SecurityOver30d     int              `json:"security_over_30d"`
	NewslettersOver14d  int              `json:"newsletters_over_14d"`
	OlderThan12mo       int              `json:"older_than_12mo"`
	Details             TimeDecayDetails `json:"details"`
}

type TimeDecayDetails struct {
	Notifications []DecayRef `json:"notifications_over_7d"`
	Receipts      []DecayRef `json:"receipts_over_90d"`
	Security      []DecayRef `json:"security_over_30d"`
	Newsletters   []DecayRef `json:"newsletters_over_14d"`
	// Review is surfaced for a human decision and never archived.
	Review []DecayRef `json:"older_than_12mo"`
}

type BurstGroup struct {
	GroupKey     string       `json:"group_key"`
	Sender       string       `json:"sender"`
	Pattern      string       `json:"pattern"`
	TotalInBurst int          `json:"total_in_burst"`
	KeepUID      domain.UID   `json:"keep_uid"`
	ArchiveUIDs  []domain.UID `json:"archive_uids"`
}

type Dedup struct {
	BurstGroups     int          `json:"burst_groups"`
	TotalDuplicates int          `json:"total_duplicates"`
	Groups          []BurstGroup `json:"groups"`
}

type Summary struct {
	AlreadyClassifiedArchive int            `json:"already_classified_archive"`
	TimeDecayArchive         int            `json:"time_decay_archive"`
	DedupArchive             int            `json:"dedup_archive"`
	FlaggedForReview12mo     int            `json:"flagged_for_review_12mo"`
	TotalWouldArchive        int            `json:"total_would_archive"`
	TotalWouldKeep           int            `json:"total_would_keep"`
	KeepByCategory           map[string]int `json:"keep_by_category"`
}
