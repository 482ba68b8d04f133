package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fixunreads/internal/repair"
)

func runFix(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return writeCommandError(cmd, err)
	}
	defer a.Close()

	realm, _ := cmd.Flags().GetString("realm")
	asJSON, _ := cmd.Flags().GetBool("json")

	runner, _ := a.newRunner(a.repairOptions(cmd))

	results, err := runner.RepairEmails(cmd.Context(), realm, args)
	if errors.Is(err, repair.ErrRealmNotFound) {
		return writeCommandError(cmd, err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if encErr := printResultsJSON(out, results); encErr != nil {
			return writeCommandError(cmd, encErr)
		}
	} else {
		for _, result := range results {
			printResult(out, realm, result)
		}
	}

	if err != nil {
		return writeCommandError(cmd, err)
	}
	return nil
}

func printResult(w io.Writer, realm string, result repair.Result) {
	if result.Skipped {
		if realm == "" {
			realm = "any realm"
		}
		fmt.Fprintf(w, "e-mail %s doesn't exist in the realm %s, skipping\n", result.Email, realm)
		return
	}

	if result.Report != nil {
		printReport(w, result.Report)
	}
	if result.Err != nil {
		fmt.Fprintf(w, "  failed: %v\n", result.Err)
	}
}

func printReport(w io.Writer, report *repair.Report) {
	fmt.Fprintf(w, "%s (user %d): %s\n", report.Email, report.UserID, report.Outcome)

	for _, phase := range report.Phases {
		fmt.Fprintf(w, "  %-48s %8.3fms  %d rows\n",
			phase.Name, float64(phase.Elapsed.Microseconds())/1000, phase.Rows)
	}

	fmt.Fprintf(w, "  stale subscriptions: %d recipients, %d messages marked read\n",
		len(report.StaleRecipients), report.StaleSubscriptionCleared)

	preMarker := "reported"
	if report.PreMarkerApplied {
		preMarker = "marked read"
	}
	fmt.Fprintf(w, "  before pointer: %d candidates (%d muted skipped), %d %s\n",
		report.PreMarkerCandidates, report.PreMarkerMuted, preMarkerCount(report), preMarker)

	if report.DryRun {
		fmt.Fprintln(w, "  dry run: nothing was written")
	}
}

func preMarkerCount(report *repair.Report) int {
	if report.PreMarkerApplied {
		return report.PreMarkerCleared
	}
	return report.PreMarkerCandidates
}

type resultJSON struct {
	Email   string         `json:"email"`
	Skipped bool           `json:"skipped"`
	Error   string         `json:"error,omitempty"`
	Report  *repair.Report `json:"report,omitempty"`
}

func printResultsJSON(w io.Writer, results []repair.Result) error {
	out := make([]resultJSON, 0, len(results))
	for _, r := range results {
		item := resultJSON{Email: r.Email, Skipped: r.Skipped, Report: r.Report}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		out = append(out, item)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
