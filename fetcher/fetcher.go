// SPDX-License-Identifier: GPL-3.0-or-later
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/CrawX/go-imap-triage/checkpoint"
	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/mail"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const Inbox = "INBOX"

type Config struct {
	MetadataBatchSize int
	BodyBatchSize     int
	// BodyTimeout bounds a whole body batch, SingleTimeout each message of a
	// degraded batch.
	BodyTimeout   time.Duration
	SingleTimeout time.Duration
	PreviewChars  int
	// RequestsPerSecond limits protocol batches, zero disables the limit.
	RequestsPerSecond float64
}

func DefaultConfig() Config {
	return Config{
		MetadataBatchSize: 500,
		BodyBatchSize:     50,
		BodyTimeout:       120 * time.Second,
		SingleTimeout:     60 * time.Second,
		PreviewChars:      300,
	}
}

type Fetcher struct {
	conn    domain.ImapConnector
	store   *checkpoint.Store
	config  Config
	limiter *rate.Limiter

	uidValidity uint32

	l *logrus.Logger
}

func NewFetcher(conn domain.ImapConnector, store *checkpoint.Store, config Config) *Fetcher {
	defaults := DefaultConfig()
	if config.MetadataBatchSize <= 0 {
		config.MetadataBatchSize = defaults.MetadataBatchSize
	}
	if config.BodyBatchSize <= 0 {
		config.BodyBatchSize = defaults.BodyBatchSize
	}
	if config.BodyTimeout <= 0 {
		config.BodyTimeout = defaults.BodyTimeout
	}
	if config.SingleTimeout <= 0 {
		config.SingleTimeout = defaults.SingleTimeout
	}
	if config.PreviewChars <= 0 {
		config.PreviewChars = defaults.PreviewChars
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Fetcher{
		conn:    conn,
		store:   store,
		config:  config,
		limiter: rate.NewLimiter(limit, 1),
		l:       log.Logger(log.LOG_FETCHER),
	}
}

// UidValidity of INBOX as seen by the last fetch.
func (f *Fetcher) UidValidity() uint32 {
	return f.uidValidity
}

func (f *Fetcher) selectInbox() error {
	status, err := f.conn.Select(Inbox, true)
	if err != nil {
		return fmt.Errorf("could not select %s: %w", Inbox, err)
	}
	f.uidValidity = status.UidValidity
	return nil
}

// FetchMetadata returns a record for every message currently in INBOX,
// resuming from the metadata checkpoint. Records keep the order in which the
// server answered.
func (f *Fetcher) FetchMetadata(ctx context.Context) ([]*domain.MessageRecord, error) {
	err := f.selectInbox()
	if err != nil {
		return nil, err
	}

	uids, err := f.conn.ListUids()
	if err != nil {
		return nil, fmt.Errorf("could not list uids: %w", err)
	}

	journal, err := f.store.Open(checkpoint.Metadata, f.uidValidity, len(uids))
	if err != nil {
		return nil, fmt.Errorf("could not open checkpoint: %w", err)
	}

	missing := journal.Missing(uids)
	batches := domain.PartitionUids(missing, f.config.MetadataBatchSize)
	baseLogger := f.l.WithFields(logrus.Fields{"total": len(uids), "cached": len(uids) - len(missing), "batches": len(batches)})
	baseLogger.Info("Fetching metadata")

	err = f.refreshUnread(ctx, journal, uids)
	if err != nil {
		return nil, err
	}

	for _, batch := range batches {
		if err := f.wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		records, err := f.conn.FetchHeaders(batch)
		if err != nil {
			f.l.WithFields(logrus.Fields{"batchsize": len(batch), "error": err}).Warn("Header batch failed, retrying one by one")
			records = f.fetchHeadersSingly(ctx, batch)
		}

		journal.AddMessages(records)
		err = journal.Commit()
		if err != nil {
			return nil, fmt.Errorf("could not commit metadata checkpoint: %w", err)
		}
		f.l.WithFields(logrus.Fields{"done": journal.Count(), "total": len(uids), "duration": time.Since(start)}).Info("Fetched metadata batch")
	}

	present := make(map[domain.UID]bool, len(uids))
	for _, uid := range uids {
		present[uid] = true
	}
	result := []*domain.MessageRecord{}
	for _, r := range journal.Messages() {
		if present[r.UID] {
			result = append(result, r)
		}
	}

	return result, nil
}

// refreshUnread re-reads the FLAGS of records restored from the checkpoint,
// they may have been read or marked unread since. A failing batch keeps the
// cached state.
func (f *Fetcher) refreshUnread(ctx context.Context, journal *checkpoint.Journal, uids []domain.UID) error {
	cached := []domain.UID{}
	for _, uid := range uids {
		if journal.Has(uid) {
			cached = append(cached, uid)
		}
	}

	changed := 0
	for _, batch := range domain.PartitionUids(cached, f.config.MetadataBatchSize) {
		if err := f.wait(ctx); err != nil {
			return err
		}
		unread, err := f.conn.FetchUnread(batch)
		if err != nil {
			f.l.WithFields(logrus.Fields{"batchsize": len(batch), "error": err}).Warn("Could not refresh flags, keeping cached state")
			continue
		}
		changed += journal.SetUnread(unread)
	}
	if changed == 0 {
		return nil
	}

	f.l.WithField("changed", changed).Info("Refreshed unread state of cached messages")
	err := journal.Commit()
	if err != nil {
		return fmt.Errorf("could not commit metadata checkpoint: %w", err)
	}
	return nil
}

func (f *Fetcher) fetchHeadersSingly(ctx context.Context, batch []domain.UID) []*domain.MessageRecord {
	records := []*domain.MessageRecord{}
	for _, uid := range batch {
		if ctx.Err() != nil {
			break
		}
		single, err := f.conn.FetchHeaders([]domain.UID{uid})
		if err != nil {
			f.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Warn("Skipping message")
			continue
		}
		records = append(records, single...)
	}
	return records
}

// FetchBodies returns body previews for uids, resuming from the bodies
// checkpoint. A failing batch is retried once message by message with a
// shorter timeout, messages failing there are skipped.
func (f *Fetcher) FetchBodies(ctx context.Context, uids []domain.UID) (map[domain.UID]string, error) {
	err := f.selectInbox()
	if err != nil {
		return nil, err
	}

	journal, err := f.store.Open(checkpoint.Bodies, f.uidValidity, len(uids))
	if err != nil {
		return nil, fmt.Errorf("could not open checkpoint: %w", err)
	}

	missing := journal.Missing(uids)
	batches := domain.PartitionUids(missing, f.config.BodyBatchSize)
	f.l.WithFields(logrus.Fields{"total": len(uids), "cached": len(uids) - len(missing), "batches": len(batches)}).Info("Fetching bodies")

	for _, batch := range batches {
		if err := f.wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		raw, err := f.conn.FetchBodies(batch, f.config.BodyTimeout)
		if err != nil {
			f.l.WithFields(logrus.Fields{"batchsize": len(batch), "error": err}).Warn("Body batch failed, retrying one by one")
			raw = f.fetchBodiesSingly(ctx, batch)
		}

		journal.AddBodies(f.previews(raw))
		err = journal.Commit()
		if err != nil {
			return nil, fmt.Errorf("could not commit bodies checkpoint: %w", err)
		}
		f.l.WithFields(logrus.Fields{"done": journal.Count(), "total": len(uids), "duration": time.Since(start)}).Info("Fetched body batch")
	}

	return journal.Bodies(), nil
}

func (f *Fetcher) fetchBodiesSingly(ctx context.Context, batch []domain.UID) map[domain.UID]string {
	raw := map[domain.UID]string{}
	for _, uid := range batch {
		if ctx.Err() != nil {
			break
		}
		single, err := f.conn.FetchBodies([]domain.UID{uid}, f.config.SingleTimeout)
		if err != nil {
			f.l.WithFields(logrus.Fields{"uid": uid, "error": err}).Warn("Skipping body")
			continue
		}
		for k, v := range single {
			raw[k] = v
		}
	}
	return raw
}

func (f *Fetcher) previews(raw map[domain.UID]string) map[domain.UID]string {
	previews := make(map[domain.UID]string, len(raw))
	for uid, body := range raw {
		previews[uid] = mail.BodyPreview([]byte(body), f.config.PreviewChars)
	}
	return previews
}

func (f *Fetcher) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fetch interrupted: %w", err)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("fetch interrupted: %w", err)
	}
	return nil
}
