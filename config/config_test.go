// SPDX-License-Identifier: GPL-3.0-or-later
package config

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, content string) string {
	dir, err := ioutil.TempDir("", "config")
	assert.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "config.toml")
	assert.NoError(t, ioutil.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadConfig(t *testing.T) {
	path := writeConfig(t, `
RuleFile = "rules.toml"
BodyBatchSize = 25
BodyTimeoutSeconds = 90

[[Accounts]]
Name = "personal"
ImapHost = "imap.gmail.com:993"
User = "me@gmail.com"
Password = "secret"

[[Accounts]]
Name = "work"
ImapHost = "mail.example.com:993"
User = "me"
Backend = "folder"
HoldingFolders = ["INBOX.Triage"]
`)

	c, err := ReadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "triage_output", c.OutputDir)
	assert.Equal(t, "shared_rules.json", c.SharedRules)
	assert.Equal(t, DefaultKeyringService, c.KeyringService)
	assert.Equal(t, 8, c.ClassifyConcurrency)
	assert.Len(t, c.Accounts, 2)

	a, err := c.Account("")
	assert.NoError(t, err)
	assert.Equal(t, "personal", a.Name)

	a, err = c.Account("work")
	assert.NoError(t, err)
	ac := c.ArchiverConfig(a)
	assert.Equal(t, "work", ac.Account)
	assert.Equal(t, "folder", ac.Backend)
	assert.Equal(t, []string{"INBOX.Triage"}, ac.HoldingFolders)

	fc := c.FetcherConfig()
	assert.Equal(t, 25, fc.BodyBatchSize)
	assert.Equal(t, 90*time.Second, fc.BodyTimeout)

	_, err = c.Account("missing")
	assert.EqualError(t, err, "no account named missing, available: personal, work")
}

func TestReadConfig_Invalid(t *testing.T) {
	account := "\n[[Accounts]]\nName = \"a\"\nImapHost = \"h:993\"\nUser = \"u\"\n"
	tests := []struct {
		name    string
		content string
		err     string
	}{
		{"no accounts", ``, "no accounts configured, add at least one [[Accounts]] section"},
		{"empty output dir", `OutputDir = " "` + account, "OutputDir must not be empty, set to the directory receiving per-account results"},
		{"no host", "[[Accounts]]\nName = \"a\"\nUser = \"u\"\n", "account a: ImapHost must not be empty, set to host:port of the imap server"},
		{"no name", "[[Accounts]]\nImapHost = \"h:993\"\n", "account 1: Name must not be empty, it names the output directory"},
		{"duplicate", account + account, "account a is configured twice"},
		{"path name", "[[Accounts]]\nName = \"../a\"\n", "account ../a: Name must not contain path separators"},
		{"backend", account + "Backend = \"trash\"\n", "account a: Backend must be one of auto, label or folder"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadConfig(writeConfig(t, tc.content))
			assert.EqualError(t, err, tc.err)
		})
	}

	_, err := ReadConfig(filepath.Join(os.TempDir(), "does-not-exist.toml"))
	assert.Error(t, err)
}

type fakeStore map[string]string

func (f fakeStore) Get(key string) (keyring.Item, error) {
	v, ok := f[key]
	if !ok {
		return keyring.Item{}, keyring.ErrKeyNotFound
	}
	return keyring.Item{Key: key, Data: []byte(v)}, nil
}

func TestAccount_ResolvePassword(t *testing.T) {
	store := fakeStore{"personal": "from-keyring", "empty": ""}
	ring := func() (SecretStore, error) { return store, nil }
	broken := func() (SecretStore, error) { return nil, errors.New("no backend") }

	pw, err := (&Account{Name: "personal", Password: "inline"}).ResolvePassword(broken)
	assert.NoError(t, err)
	assert.Equal(t, "inline", pw)

	pw, err = (&Account{Name: "personal"}).ResolvePassword(ring)
	assert.NoError(t, err)
	assert.Equal(t, "from-keyring", pw)

	_, err = (&Account{Name: "other"}).ResolvePassword(ring)
	assert.True(t, errors.Is(err, keyring.ErrKeyNotFound))

	_, err = (&Account{Name: "empty"}).ResolvePassword(ring)
	assert.EqualError(t, err, `keyring entry "empty" is empty`)

	_, err = (&Account{Name: "personal"}).ResolvePassword(broken)
	assert.Error(t, err)
}
