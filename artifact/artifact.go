// SPDX-License-Identifier: GPL-3.0-or-later
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/CrawX/go-imap-triage/checkpoint"
	"github.com/CrawX/go-imap-triage/domain"
	"github.com/CrawX/go-imap-triage/refine"
)

const (
	AllMessagesFile    = "all_messages.json"
	SenderReportFile   = "pass1_sender_report.csv"
	Pass1SummaryFile   = "pass1_summary.json"
	ArchiveRulesFile   = "archive_rules.json"
	RemainingFile      = "pass2_remaining.json"
	ClassificationFile = "pass2_classification.json"
	AnalysisFile       = "phase2_analysis.json"
	SharedRulesFile    = "shared_rules.json"
	LedgerFile         = "archive_ledger.db"
)

// MissingError reports an artifact that a step needs but that has not been
// produced yet.
type MissingError struct {
	Path string
	// Step is the command that produces the file.
	Step string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s not found, run %s first", e.Path, e.Step)
}

// producers names the command that writes each file.
var producers = map[string]string{
	AllMessagesFile:    "pass1",
	SenderReportFile:   "pass1",
	Pass1SummaryFile:   "pass1",
	ArchiveRulesFile:   "pass1 and write archive_rules.json from the sender report",
	RemainingFile:      "pass2",
	ClassificationFile: "classify",
	AnalysisFile:       "phase2-analyse",
}

// Dir is the output directory of a single account.
type Dir struct {
	Account string
	Path    string
}

func NewDir(outputDir, account string) *Dir {
	return &Dir{Account: account, Path: filepath.Join(outputDir, account)}
}

func (d *Dir) File(name string) string {
	return filepath.Join(d.Path, name)
}

func (d *Dir) Exists(name string) bool {
	return Exists(d.File(name))
}

func (d *Dir) Ensure() error {
	err := os.MkdirAll(d.Path, 0o755)
	if err != nil {
		return fmt.Errorf("could not create output directory %s: %w", d.Path, err)
	}
	return nil
}

// Require returns a MissingError for the first of names that does not exist.
func (d *Dir) Require(names ...string) error {
	for _, name := range names {
		if !d.Exists(name) {
			return &MissingError{Path: d.File(name), Step: producers[name]}
		}
	}
	return nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Accounts lists the account directories below outputDir in name order.
func Accounts(outputDir string) ([]*Dir, error) {
	entries, err := ioutil.ReadDir(outputDir)
	if errors.Is(err, os.ErrNotExist) {
		return []*Dir{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not list %s: %w", outputDir, err)
	}

	dirs := []*Dir{}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, NewDir(outputDir, e.Name()))
		}
	}
	return dirs, nil
}

func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode %s: %w", filepath.Base(path), err)
	}
	return checkpoint.WriteAtomic(path, append(data, '\n'))
}

// ReadJSON decodes path into v. A missing file is returned as os.ErrNotExist
// so callers can turn it into a MissingError.
func ReadJSON(path string, v interface{}) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	err = json.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("could not decode %s: %w", path, err)
	}
	return nil
}

func (d *Dir) read(name string, v interface{}) error {
	err := ReadJSON(d.File(name), v)
	if errors.Is(err, os.ErrNotExist) {
		return &MissingError{Path: d.File(name), Step: producers[name]}
	}
	return err
}

// MessageSnapshot is the content of all_messages.json and
// pass2_remaining.json. UidValidity tells later steps whether the UIDs still
// address the same messages.
type MessageSnapshot struct {
	Account     string                  `json:"account"`
	UidValidity uint32                  `json:"uidvalidity"`
	Generated   time.Time               `json:"generated"`
	Messages    []*domain.MessageRecord `json:"messages"`
}

// Classifications is the content of pass2_classification.json.
type Classifications struct {
	Account     string                      `json:"account"`
	UidValidity uint32                      `json:"uidvalidity"`
	Generated   time.Time                   `json:"generated"`
	Messages    []*domain.ClassifiedMessage `json:"messages"`
}

func (d *Dir) WriteMessages(name string, snapshot *MessageSnapshot) error {
	return WriteJSON(d.File(name), snapshot)
}

func (d *Dir) ReadMessages(name string) (*MessageSnapshot, error) {
	snapshot := &MessageSnapshot{}
	err := d.readWrapped(name, snapshot, &snapshot.Messages)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (d *Dir) WriteClassifications(c *Classifications) error {
	return WriteJSON(d.File(ClassificationFile), c)
}

// ReadClassifications also accepts a bare list of classified records, the
// format produced by external classification tools. Such a file carries no
// UIDVALIDITY.
func (d *Dir) ReadClassifications() (*Classifications, error) {
	c := &Classifications{}
	err := d.readWrapped(ClassificationFile, c, &c.Messages)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Dir) readWrapped(name string, wrapper interface{}, list interface{}) error {
	data, err := ioutil.ReadFile(d.File(name))
	if errors.Is(err, os.ErrNotExist) {
		return &MissingError{Path: d.File(name), Step: producers[name]}
	}
	if err != nil {
		return fmt.Errorf("could not read %s: %w", name, err)
	}

	target := wrapper
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		target = list
	}
	err = json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("could not decode %s: %w", d.File(name), err)
	}
	return nil
}

func (d *Dir) WriteAnalysis(report *refine.AnalysisReport) error {
	return WriteJSON(d.File(AnalysisFile), report)
}

func (d *Dir) ReadAnalysis() (*refine.AnalysisReport, error) {
	report := &refine.AnalysisReport{}
	err := d.read(AnalysisFile, report)
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (d *Dir) WriteSummary(summary *Summary) error {
	return WriteJSON(d.File(Pass1SummaryFile), summary)
}

func (d *Dir) ReadSummary() (*Summary, error) {
	summary := &Summary{}
	err := d.read(Pass1SummaryFile, summary)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (d *Dir) ReadArchiveRules() (*Rules, error) {
	rules := &Rules{}
	err := d.read(ArchiveRulesFile, rules)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (d *Dir) WriteArchiveRules(rules *Rules) error {
	return WriteJSON(d.File(ArchiveRulesFile), rules)
}
