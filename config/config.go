// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CrawX/go-imap-triage/archiver"
	"github.com/CrawX/go-imap-triage/fetcher"

	"github.com/99designs/keyring"
	"github.com/BurntSushi/toml"
)

const DefaultKeyringService = "go-imap-triage"

type Account struct {
	Name     string
	ImapHost string
	User     string
	// Password may be left empty, it is then read from the OS keyring under
	// the account name.
	Password       string
	UseCompression bool

	// Backend is auto, label or folder. Auto picks label on servers
	// advertising Gmail extensions.
	Backend        string
	AllMailFolder  string
	HoldingFolders []string
}

type Config struct {
	OutputDir      string
	SharedRules    string
	Database       string
	KeyringService string

	// RuleFile is the TOML rule set used by classify.
	RuleFile            string
	SpamassassinHost    string
	ClassifyConcurrency int

	MetadataBatchSize  int
	BodyBatchSize      int
	BodyTimeoutSeconds int
	RequestsPerSecond  float64
	ScanBatchSize      int
	FlagBatchSize      int

	Accounts []Account

	Loglevel *string
}

func ReadConfig(filename string) (*Config, error) {
	config := &Config{
		OutputDir:           "triage_output",
		SharedRules:         "shared_rules.json",
		Database:            "archive_ledger.db",
		KeyringService:      DefaultKeyringService,
		ClassifyConcurrency: 8,
	}

	_, err := toml.DecodeFile(filename, config)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	err = config.validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if err := validateNonEmptyStringField(c.OutputDir, "OutputDir must not be empty, set to the directory receiving per-account results"); err != nil {
		return err
	}

	if err := validateNonEmptyStringField(c.Database, "Database name must not be empty, set to a filename for the sqlite archive ledger"); err != nil {
		return err
	}

	if len(c.Accounts) == 0 {
		return errors.New("no accounts configured, add at least one [[Accounts]] section")
	}

	seen := map[string]bool{}
	for i, a := range c.Accounts {
		if err := validateNonEmptyStringField(a.Name, fmt.Sprintf("account %d: Name must not be empty, it names the output directory", i+1)); err != nil {
			return err
		}
		if strings.ContainsAny(a.Name, `/\`) {
			return fmt.Errorf("account %s: Name must not contain path separators", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("account %s is configured twice", a.Name)
		}
		seen[a.Name] = true

		if err := validateNonEmptyStringField(a.ImapHost, fmt.Sprintf("account %s: ImapHost must not be empty, set to host:port of the imap server", a.Name)); err != nil {
			return err
		}
		if err := validateNonEmptyStringField(a.User, fmt.Sprintf("account %s: User must not be empty, set to username on the imap server", a.Name)); err != nil {
			return err
		}

		switch a.Backend {
		case "", archiver.BackendAuto, archiver.BackendLabel, archiver.BackendFolder:
		default:
			return fmt.Errorf("account %s: Backend must be one of %s, %s or %s", a.Name, archiver.BackendAuto, archiver.BackendLabel, archiver.BackendFolder)
		}
	}

	return nil
}

func validateNonEmptyStringField(field string, err string) error {
	if len(strings.TrimSpace(field)) == 0 {
		return errors.New(err)
	}

	return nil
}

// Account returns the account called name, or the first account when name is
// empty.
func (c *Config) Account(name string) (*Account, error) {
	if name == "" {
		return &c.Accounts[0], nil
	}
	names := make([]string, 0, len(c.Accounts))
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
		names = append(names, c.Accounts[i].Name)
	}
	return nil, fmt.Errorf("no account named %s, available: %s", name, strings.Join(names, ", "))
}

func (c *Config) FetcherConfig() fetcher.Config {
	return fetcher.Config{
		MetadataBatchSize: c.MetadataBatchSize,
		BodyBatchSize:     c.BodyBatchSize,
		BodyTimeout:       time.Duration(c.BodyTimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

func (c *Config) ArchiverConfig(a *Account) archiver.Config {
	return archiver.Config{
		Account:        a.Name,
		ScanBatchSize:  c.ScanBatchSize,
		FlagBatchSize:  c.FlagBatchSize,
		Backend:        a.Backend,
		AllMailFolder:  a.AllMailFolder,
		HoldingFolders: a.HoldingFolders,
	}
}

// SecretStore is the part of keyring.Keyring used to look up passwords.
type SecretStore interface {
	Get(key string) (keyring.Item, error)
}

func OpenKeyring(service string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open keyring: %w", err)
	}
	return ring, nil
}

// ResolvePassword returns the configured password of a, falling back to the keyring
// entry named after the account.
func (a *Account) ResolvePassword(ring func() (SecretStore, error)) (string, error) {
	if strings.TrimSpace(a.Password) != "" {
		return a.Password, nil
	}

	store, err := ring()
	if err != nil {
		return "", fmt.Errorf("account %s has no Password and the keyring is unavailable: %w", a.Name, err)
	}
	item, err := store.Get(a.Name)
	if err != nil {
		return "", fmt.Errorf("account %s has no Password, store it in the keyring under %q: %w", a.Name, a.Name, err)
	}
	if len(item.Data) == 0 {
		return "", fmt.Errorf("keyring entry %q is empty", a.Name)
	}
	return string(item.Data), nil
}
