package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentpilot/agentpilot/pkg/models"
)

// AggregateFunc supplies the scheduler's current status counts to checks.
type AggregateFunc func() models.StatusCounts

// DefaultChecklists builds the standard exit-criteria checklists for each
// phase:
//
//	INIT      - session files present, hook scripts installed and executable,
//	            backlog loaded
//	IMPLEMENT - no pending or blocked features
//	TEST      - every feature tested
//	COMPLETE  - terminal, no exit criteria
//
// Paths in requiredFiles and hookScripts are relative to sessionDir.
func DefaultChecklists(aggregate AggregateFunc, sessionDir string, requiredFiles, hookScripts []string) map[models.PhaseName][]Check {
	return map[models.PhaseName][]Check{
		models.PhaseInit: {
			{Name: "required_files_present", Run: filesPresentCheck(sessionDir, requiredFiles)},
			{Name: "hooks_executable", Run: hooksExecutableCheck(sessionDir, hookScripts)},
			{Name: "backlog_loaded", Run: backlogLoadedCheck(aggregate)},
		},
		models.PhaseImplement: {
			{Name: "no_pending_features", Run: countCheck(aggregate, "pending", func(c models.StatusCounts) int { return c.Pending })},
			{Name: "no_blocked_features", Run: countCheck(aggregate, "blocked", func(c models.StatusCounts) int { return c.Blocked })},
		},
		models.PhaseTest: {
			{Name: "all_features_tested", Run: allTestedCheck(aggregate)},
		},
	}
}

func filesPresentCheck(sessionDir string, files []string) func() models.CheckResult {
	return func() models.CheckResult {
		var missing []string
		for _, rel := range files {
			if _, err := os.Stat(filepath.Join(sessionDir, rel)); err != nil {
				missing = append(missing, rel)
			}
		}
		if len(missing) > 0 {
			return models.Fail("", "missing: "+strings.Join(missing, ", "))
		}
		return models.Pass("")
	}
}

func hooksExecutableCheck(sessionDir string, hooks []string) func() models.CheckResult {
	return func() models.CheckResult {
		var problems []string
		for _, rel := range hooks {
			path := filepath.Join(sessionDir, rel)
			info, err := os.Stat(path)
			if err != nil {
				problems = append(problems, rel+" (missing)")
				continue
			}
			if info.Mode().Perm()&0o111 == 0 {
				problems = append(problems, rel+" (not executable)")
			}
		}
		if len(problems) > 0 {
			return models.Fail("", strings.Join(problems, ", "))
		}
		return models.Pass("")
	}
}

func backlogLoadedCheck(aggregate AggregateFunc) func() models.CheckResult {
	return func() models.CheckResult {
		if aggregate().Total() == 0 {
			return models.Fail("", "backlog is empty")
		}
		return models.Pass("")
	}
}

func countCheck(aggregate AggregateFunc, label string, count func(models.StatusCounts) int) func() models.CheckResult {
	return func() models.CheckResult {
		if n := count(aggregate()); n > 0 {
			return models.Fail("", fmt.Sprintf("%d feature(s) still %s", n, label))
		}
		return models.Pass("")
	}
}

func allTestedCheck(aggregate AggregateFunc) func() models.CheckResult {
	return func() models.CheckResult {
		counts := aggregate()
		below := counts.Total() - counts.Tested
		if below > 0 {
			return models.Fail("", fmt.Sprintf("%d feature(s) below tested", below))
		}
		return models.Pass("")
	}
}
