// SPDX-License-Identifier: GPL-3.0-or-later
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/log"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
)

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "1_archive_ledger",
			Up: []string{
				`CREATE TABLE runs (
					id TEXT PRIMARY KEY,
					account TEXT NOT NULL,
					backend TEXT NOT NULL,
					holdingfolder TEXT NOT NULL,
					uidvalidity INTEGER NOT NULL,
					startedat DATETIME NOT NULL,
					finishedat DATETIME,
					matched INTEGER NOT NULL,
					flagged INTEGER NOT NULL DEFAULT 0,
					warning TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX runs_account ON runs (account)`,
				`CREATE TABLE archived (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					runid TEXT NOT NULL REFERENCES runs (id),
					uid INTEGER NOT NULL,
					senderemail TEXT NOT NULL,
					subject TEXT NOT NULL
				)`,
				`CREATE INDEX archived_runid ON archived (runid)`,
			},
			Down: []string{
				`DROP TABLE archived`,
				`DROP TABLE runs`,
			},
		},
	},
}

// Persistence is the sqlite backed domain.ArchiveLedger.
type Persistence struct {
	db  *sqlx.DB
	now func() time.Time
	l   *logrus.Logger
}

func NewPersistence(datasource string) (*Persistence, error) {
	db, err := sqlx.Connect("sqlite3", datasource)
	if err != nil {
		return nil, fmt.Errorf("could not open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := log.Logger(log.LOG_PERSISTENCE)
	l.WithField("file", datasource).Info("Connected")

	_, err = db.Exec(`PRAGMA journal_mode=WAL`)
	if err != nil {
		return nil, fmt.Errorf("could not set journal mode: %w", err)
	}
	_, err = db.Exec(`PRAGMA synchronous=normal`)
	if err != nil {
		return nil, fmt.Errorf("could not set synchronous mode: %w", err)
	}

	appliedMigrations, err := migrate.Exec(db.DB, "sqlite3", migrations, migrate.Up)
	if err != nil {
		return nil, fmt.Errorf("could not migrate to newest version: %w", err)
	}

	l.WithField("migrations", appliedMigrations).Debug("Executed migrations")

	return &Persistence{
		db:  db,
		now: time.Now,
		l:   l,
	}, nil
}

func (p *Persistence) Close() error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("could not close db: %w", err)
	}
	p.l.Info("Disconnected")
	return nil
}

// StartRun stores run, assigning a new id and start time when they are unset.
func (p *Persistence) StartRun(run *domain.ArchiveRun) error {
	if run.Id == "" {
		run.Id = uuid.New().String()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = p.now().UTC()
	}

	_, err := p.db.Exec(
		"INSERT INTO runs (id, account, backend, holdingfolder, uidvalidity, startedat, matched) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.Id, run.Account, run.Backend, run.HoldingFolder, run.UidValidity, run.StartedAt, run.Matched,
	)
	if err != nil {
		return fmt.Errorf("could not save run: %w", err)
	}

	p.l.WithFields(logrus.Fields{"run": run.Id, "account": run.Account, "backend": run.Backend}).Debug("Persisted run")
	return nil
}

func (p *Persistence) RecordBatch(runId string, mails []domain.ArchivedMail) error {
	tx, err := p.db.BeginTxx(context.TODO(), nil)
	if err != nil {
		return fmt.Errorf("could not start transaction: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT INTO archived (runid, uid, senderemail, subject) VALUES (?, ?, ?, ?)",
	)
	if err != nil {
		return txEnd(tx, fmt.Errorf("could not prepare statement: %w", err))
	}

	for _, mail := range mails {
		_, err := stmt.Exec(runId, uint32(mail.Uid), mail.SenderEmail, mail.Subject)
		if err != nil {
			return txEnd(tx, fmt.Errorf("could not save archived mail: %w", err))
		}
	}

	return txEnd(tx, nil)
}

func (p *Persistence) FinishRun(runId string, flagged int, warning string) error {
	result, err := p.db.Exec(
		"UPDATE runs SET finishedat = ?, flagged = ?, warning = ? WHERE id = ?",
		p.now().UTC(), flagged, warning, runId,
	)
	if err != nil {
		return fmt.Errorf("could not finish run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get num of affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("unexpected number of affected rows, expected 1 got %d", affected)
	}

	return nil
}

func (p *Persistence) Runs(account string) ([]*domain.ArchiveRun, error) {
	dbRuns := []struct {
		Id            string
		Account       string
		Backend       string
		HoldingFolder string
		UidValidity   uint32
		StartedAt     time.Time
		FinishedAt    *time.Time
		Matched       int
		Flagged       int
		Warning       string
	}{}

	err := p.db.Select(
		&dbRuns,
		`SELECT id, account, backend, holdingfolder, uidvalidity, startedat, finishedat, matched, flagged, warning
		FROM runs WHERE account = ? ORDER BY startedat`,
		account,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	runs := []*domain.ArchiveRun{}
	for _, r := range dbRuns {
		runs = append(runs, &domain.ArchiveRun{
			Id:            r.Id,
			Account:       r.Account,
			Backend:       r.Backend,
			HoldingFolder: r.HoldingFolder,
			UidValidity:   r.UidValidity,
			StartedAt:     r.StartedAt,
			FinishedAt:    r.FinishedAt,
			Matched:       r.Matched,
			Flagged:       r.Flagged,
			Warning:       r.Warning,
		})
	}

	return runs, nil
}

func (p *Persistence) ArchivedMails(runId string) ([]domain.ArchivedMail, error) {
	dbMails := []struct {
		Uid         uint32
		SenderEmail string
		Subject     string
	}{}

	err := p.db.Select(
		&dbMails,
		"SELECT uid, senderemail, subject FROM archived WHERE runid = ? ORDER BY id",
		runId,
	)
	if err != nil {
		return nil, fmt.Errorf("could not query db: %w", err)
	}

	mails := []domain.ArchivedMail{}
	for _, m := range dbMails {
		mails = append(mails, domain.ArchivedMail{
			Uid:         domain.UID(m.Uid),
			SenderEmail: m.SenderEmail,
			Subject:     m.Subject,
		})
	}
	return mails, nil
}

func txEnd(tx *sqlx.Tx, err error) error {
	if err == nil {
		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("could not commit tx: %w", err)
		}
	} else {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			errStr := err.Error()
			return fmt.Errorf("%s, could not rollback tx: %w", errStr, rollbackErr)
		} else {
			return err
		}
	}

	return nil
}

var _ domain.ArchiveLedger = &Persistence{}
