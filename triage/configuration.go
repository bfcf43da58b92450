// SPDX-License-Identifier: GPL-3.0-or-later
package triage

import (
	"fmt"
	"time"

	"github.com/CrawX/go-imap-triage/archiver"
	"github.com/CrawX/go-imap-triage/fetcher"
	"github.com/CrawX/go-imap-triage/refine"
)

type ConfigFunc func(c *configuration) error

// Execute turns off the dry run of archive steps.
func Execute() ConfigFunc {
	return func(c *configuration) error {
		c.Execute = true
		return nil
	}
}

// Fresh discards fetch checkpoints instead of resuming from them.
func Fresh() ConfigFunc {
	return func(c *configuration) error {
		c.Fresh = true
		return nil
	}
}

func SharedRules(path string) ConfigFunc {
	return func(c *configuration) error {
		if len(path) == 0 {
			return fmt.Errorf("SharedRules path cannot be empty")
		}
		c.SharedRules = path
		return nil
	}
}

func ClassifyConcurrency(n int) ConfigFunc {
	return func(c *configuration) error {
		if n < 1 {
			return fmt.Errorf("ClassifyConcurrency must be at least 1")
		}
		c.ClassifyConcurrency = n
		return nil
	}
}

func Fetcher(config fetcher.Config) ConfigFunc {
	return func(c *configuration) error {
		c.Fetcher = config
		return nil
	}
}

func Archiver(config archiver.Config) ConfigFunc {
	return func(c *configuration) error {
		c.Archiver = config
		return nil
	}
}

func Policy(policy refine.Policy) ConfigFunc {
	return func(c *configuration) error {
		c.Policy = policy
		return nil
	}
}

// Clock replaces the time source of the analysis.
func Clock(now func() time.Time) ConfigFunc {
	return func(c *configuration) error {
		if now == nil {
			return fmt.Errorf("Clock cannot be nil")
		}
		c.Now = now
		return nil
	}
}

type configuration struct {
	Execute bool
	Fresh   bool

	SharedRules         string
	ClassifyConcurrency int

	Fetcher  fetcher.Config
	Archiver archiver.Config
	Policy   refine.Policy

	Now func() time.Time
}

func defaultConfiguration() *configuration {
	return &configuration{
		SharedRules:         "shared_rules.json",
		ClassifyConcurrency: 8,
		Fetcher:             fetcher.DefaultConfig(),
		Archiver:            archiver.DefaultConfig(),
		Policy:              refine.DefaultPolicy(),
		Now:                 time.Now,
	}
}
