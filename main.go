// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CrawX/go-imap-triage/archiver"
	"github.com/CrawX/go-imap-triage/artifact"
	"github.com/CrawX/go-imap-triage/classifier"
	"github.com/CrawX/go-imap-triage/classifier/spamassassin"
	"github.com/CrawX/go-imap-triage/config"
	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/imapconnection"
	"github.com/CrawX/go-imap-triage/log"
	"github.com/CrawX/go-imap-triage/monitor"
	"github.com/CrawX/go-imap-triage/persistence"
	"github.com/CrawX/go-imap-triage/triage"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type flags struct {
	configFile string
	account    string
	all        bool
	parallel   int
	execute    bool
	force      bool
	fresh      bool
	interval   time.Duration
	runId      string
}

type step func(ctx context.Context, t *triage.Triage) error

func main() {
	log.InitLogging("info")
	logger := log.Logger(log.LOG_MAIN)

	f := &flags{}
	root := &cobra.Command{
		Use:           "go-imap-triage",
		Short:         "Resumable inbox triage over IMAP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configFile, "config", "config.toml", "configuration file")
	root.PersistentFlags().StringVar(&f.account, "account", "", "account to work on, defaults to the first configured one")
	root.PersistentFlags().BoolVar(&f.all, "all", false, "work on every configured account")
	root.PersistentFlags().IntVar(&f.parallel, "parallel", 0, "accounts processed at the same time with --all, 0 means all of them")

	root.AddCommand(
		accountCommand(f, "pass1", "Scan INBOX metadata and write the sender report", true, func(ctx context.Context, t *triage.Triage) error {
			_, err := t.Pass1(ctx)
			return err
		}),
		accountCommand(f, "pass2", "Fetch bodies of the messages the archive rules keep", true, func(ctx context.Context, t *triage.Triage) error {
			_, err := t.Pass2(ctx)
			return err
		}),
		accountCommand(f, "classify", "Classify the remaining messages with the rule file", false, func(ctx context.Context, t *triage.Triage) error {
			_, err := t.Classify()
			return err
		}),
		accountCommand(f, "archive", "Archive every message of the rule senders (dry run without --execute)", true, func(ctx context.Context, t *triage.Triage) error {
			return reportArchive(t.Archive(ctx))
		}),
		accountCommand(f, "phase2-analyse", "Derive the archive and keep sets from the classification", false, func(ctx context.Context, t *triage.Triage) error {
			_, err := t.Phase2Analyse()
			return err
		}),
		accountCommand(f, "phase2-preview", "Show the phase 2 analysis", false, func(ctx context.Context, t *triage.Triage) error {
			return t.Phase2Preview(os.Stdout)
		}),
		accountCommand(f, "phase2-archive", "Archive the phase 2 archive set (dry run without --execute)", true, func(ctx context.Context, t *triage.Triage) error {
			return reportArchive(t.Phase2Archive(ctx))
		}),
		accountCommand(f, "status", "Show INBOX counters and triage progress", true, func(ctx context.Context, t *triage.Triage) error {
			s, err := t.Status()
			if err != nil {
				return err
			}
			fields := logrus.Fields{
				"total":      s.InboxTotal,
				"unread":     s.InboxUnread,
				"pass1":      s.Pass1Done,
				"rules":      s.RulesCreated,
				"pass2":      s.Pass2Done,
				"classified": s.Classified,
				"analysed":   s.Analysed,
				"archived":   s.ArchivedTotal,
			}
			if s.LastRun != nil {
				fields["lastrun"] = s.LastRun.Id
				fields["lastrunat"] = s.LastRun.StartedAt.Format(time.RFC3339)
			}
			logger.WithFields(fields).WithField("account", s.Account).Info("Status")
			return nil
		}),
		historyCommand(f),
		mergeRulesCommand(f),
		monitorCommand(f),
	)

	err := root.Execute()
	if err != nil {
		logger.WithField("error", err).Fatal("Command failed")
	}
}

func reportArchive(result *archiver.Result, err error) error {
	if result != nil {
		fields := logrus.Fields{"matched": len(result.Matched), "dryrun": result.DryRun}
		if !result.DryRun {
			fields["archived"] = result.Flagged
			fields["backend"] = result.Backend
			fields["folder"] = result.HoldingFolder
			fields["run"] = result.RunId
		}
		log.Logger(log.LOG_MAIN).WithFields(fields).Info("Archive finished")
	}
	return err
}

func accountCommand(f *flags, use, short string, needsConnection bool, run step) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachAccount(f, needsConnection, run)
		},
	}
	switch use {
	case "pass1", "pass2":
		cmd.Flags().BoolVar(&f.fresh, "fresh", false, "discard the fetch checkpoint and start over")
	case "archive", "phase2-archive":
		cmd.Flags().BoolVar(&f.execute, "execute", false, "really archive, without it only the matches are listed")
		cmd.Flags().BoolVar(&f.force, "force", false, "expunge even when messages flagged deleted by another client would be removed with the archived ones")
	}
	return cmd
}

func historyCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the messages an archive run removed from INBOX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachAccount(f, false, func(ctx context.Context, t *triage.Triage) error {
				mails, err := t.History(f.runId)
				if err != nil {
					return err
				}
				logger := log.Logger(log.LOG_MAIN)
				for _, m := range mails {
					logger.WithFields(logrus.Fields{"uid": m.Uid, "sender": m.SenderEmail, "subject": m.Subject}).Info("Archived")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.runId, "run", "", "archive run id as printed by archive and status")
	_ = cmd.MarkFlagRequired("run")
	return cmd
}

func mergeRulesCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "merge-rules",
		Short: "Promote senders archived in several accounts to the shared rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(f)
			if err != nil {
				return err
			}
			promotions, err := triage.MergeRules(conf.OutputDir, conf.SharedRules)
			if err != nil {
				return err
			}
			log.Logger(log.LOG_MAIN).WithField("added", len(promotions)).Info("Shared rules updated")
			return nil
		},
	}
}

func monitorCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live progress of all accounts, reads the output files only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := monitor.NewMonitor(os.Stdout, monitor.Config{
				OutputDir:   conf.OutputDir,
				SharedRules: conf.SharedRules,
				Interval:    f.interval,
				ClearScreen: true,
			})
			return m.Run(ctx)
		},
	}
	cmd.Flags().DurationVar(&f.interval, "interval", monitor.DefaultInterval, "refresh interval")
	return cmd
}

func loadConfig(f *flags) (*config.Config, error) {
	conf, err := config.ReadConfig(f.configFile)
	if err != nil {
		return nil, err
	}
	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}
	return conf, nil
}

// forEachAccount runs step for the selected accounts. With --all accounts run
// concurrently, each with its own session.
func forEachAccount(f *flags, needsConnection bool, run step) error {
	conf, err := loadConfig(f)
	if err != nil {
		return err
	}

	accounts := []*config.Account{}
	if f.all {
		for i := range conf.Accounts {
			accounts = append(accounts, &conf.Accounts[i])
		}
	} else {
		a, err := conf.Account(f.account)
		if err != nil {
			return err
		}
		accounts = append(accounts, a)
	}

	var ledger *persistence.Persistence
	if needsConnection || f.runId != "" {
		ledger, err = persistence.NewPersistence(conf.Database)
		if err != nil {
			return fmt.Errorf("could not open archive ledger: %w", err)
		}
		defer ledger.Close()
	}

	cl, err := buildClassifier(conf)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grp, ctx := errgroup.WithContext(ctx)
	if f.parallel > 0 {
		grp.SetLimit(f.parallel)
	}
	for _, a := range accounts {
		a := a
		grp.Go(func() error {
			err := runAccount(ctx, f, conf, a, ledger, cl, needsConnection, run)
			if err != nil {
				return fmt.Errorf("account %s: %w", a.Name, err)
			}
			return nil
		})
	}
	return grp.Wait()
}

func runAccount(ctx context.Context, f *flags, conf *config.Config, a *config.Account, ledger *persistence.Persistence, cl domain.Classifier, needsConnection bool, run step) error {
	var conn domain.ImapConnector
	if needsConnection {
		password, err := a.ResolvePassword(func() (config.SecretStore, error) {
			ring, err := config.OpenKeyring(conf.KeyringService)
			if err != nil {
				return nil, err
			}
			return ring, nil
		})
		if err != nil {
			return err
		}

		imapConn, err := imapconnection.NewImapConnection(a.ImapHost, a.User, password, a.UseCompression)
		if err != nil {
			return fmt.Errorf("could not connect: %w", err)
		}
		defer imapConn.Close()
		conn = imapConn
	}

	var archiveLedger domain.ArchiveLedger
	if ledger != nil {
		archiveLedger = ledger
	}

	archiverConfig := conf.ArchiverConfig(a)
	archiverConfig.ExpungeForeignDeleted = f.force

	configs := []triage.ConfigFunc{
		triage.SharedRules(conf.SharedRules),
		triage.Fetcher(conf.FetcherConfig()),
		triage.Archiver(archiverConfig),
	}
	if conf.ClassifyConcurrency > 0 {
		configs = append(configs, triage.ClassifyConcurrency(conf.ClassifyConcurrency))
	}
	if f.execute {
		configs = append(configs, triage.Execute())
	}
	if f.fresh {
		configs = append(configs, triage.Fresh())
	}

	dir := artifact.NewDir(conf.OutputDir, a.Name)
	t, err := triage.NewTriage(conn, archiveLedger, cl, dir, configs...)
	if err != nil {
		return err
	}
	return run(ctx, t)
}

// buildClassifier loads the rule file and, when a spamd host is configured,
// puts SpamAssassin in front of it. Without a rule file there is no classifier.
func buildClassifier(conf *config.Config) (domain.Classifier, error) {
	if conf.RuleFile == "" {
		return nil, nil
	}
	rules, err := classifier.ReadRules(filepath.Clean(conf.RuleFile))
	if err != nil {
		return nil, err
	}
	rc, err := classifier.NewRulesClassifier(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid rule file %s: %w", conf.RuleFile, err)
	}
	if conf.SpamassassinHost == "" {
		return rc, nil
	}

	sa, err := spamassassin.NewSpamassassin(conf.SpamassassinHost)
	if err != nil {
		return nil, fmt.Errorf("could not start spamassassin connector: %w", err)
	}
	return spamassassin.NewClassifier(sa, rc), nil
}
