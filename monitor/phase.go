// SPDX-License-Identifier: GPL-3.0-or-later
package monitor

import (
	"github.com/CrawX/go-imap-triage/artifact"
	"github.com/CrawX/go-imap-triage/checkpoint"
)

type Phase string

const (
	PhaseDone      Phase = "done"
	PhaseP2Done    Phase = "p2-done"
	PhaseP2Fetch   Phase = "p2-fetch"
	PhaseP2Pending Phase = "p2-pending"
	PhaseP1Done    Phase = "p1-done"
	PhaseP1Fetch   Phase = "p1-fetch"
	PhaseIdle      Phase = "idle"
)

var labels = map[Phase]string{
	PhaseDone:      "Triage complete",
	PhaseP2Done:    "Pass 2 done, awaiting classification",
	PhaseP2Fetch:   "Pass 2: fetching bodies",
	PhaseP2Pending: "Pass 2: ready to run",
	PhaseP1Done:    "Pass 1 done, awaiting rules",
	PhaseP1Fetch:   "Pass 1: fetching metadata",
	PhaseIdle:      "Not started",
}

func (p Phase) Label() string {
	return labels[p]
}

// DetectPhase derives the progress of an account from the files in its
// output directory. Later artifacts win over earlier ones.
func DetectPhase(d *artifact.Dir) Phase {
	switch {
	case d.Exists(artifact.ClassificationFile):
		return PhaseDone
	case d.Exists(artifact.RemainingFile):
		return PhaseP2Done
	case d.Exists(artifact.ArchiveRulesFile):
		if d.Exists(checkpoint.FileName(checkpoint.Bodies)) {
			return PhaseP2Fetch
		}
		return PhaseP2Pending
	case d.Exists(artifact.Pass1SummaryFile):
		return PhaseP1Done
	case d.Exists(checkpoint.FileName(checkpoint.Metadata)):
		return PhaseP1Fetch
	}
	return PhaseIdle
}
