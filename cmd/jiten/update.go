package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/services/update"
)

var (
	updateLang  string
	updateForce bool
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run one full dataset update cycle",
	Long: `Update refreshes the kanji (with radicals), names, and words datasets
in order, downloading any newer published releases.

Transient network failures are retried automatically. Use --force to
bypass cached version checks.`,
	Example: `  jiten update
  jiten update --lang fr --force`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVarP(&updateLang, "lang", "l", "",
		"Dataset language (default from config)")
	updateCmd.Flags().BoolVarP(&updateForce, "force", "f", false,
		"Ignore cached version checks")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lang := updateLang
	if lang == "" {
		lang = app.DefaultLang()
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = app.Updates.Run(ctx)
	}()

	app.Updates.Update(lang, updateForce)

	exitErr := followUpdate(app.Updates.Notifications(), stop)
	<-runDone
	return exitErr
}

// followUpdate prints the cycle's progress and returns once it ends,
// one way or another. Offline and aborted endings arrive as a quiet
// breadcrumb plus an idle snapshot carrying the terminal failure, not
// as an error notification, so the idle-with-failure transition has to
// end the loop too.
func followUpdate(notifs <-chan update.Notification, stop func()) error {
	var exitErr error
	for n := range notifs {
		switch n.Type {
		case update.NotifBreadcrumb:
			fmt.Printf("  %s\n", n.Message)
		case update.NotifStateUpdated:
			printPhase(n)
			if f := terminalFailure(n.Snapshot); f != nil {
				color.Yellow("Update stopped: %v", f.Err)
				exitErr = f.Err
				stop()
			}
		case update.NotifError:
			if n.Severity == update.SeverityWarning {
				color.Yellow("Warning: %v", n.Err)
				continue
			}
			color.Red("Update failed: %v", n.Err)
			exitErr = n.Err
			stop()
		case update.NotifUpdateComplete:
			if n.LastCheck.IsZero() {
				color.Green("All datasets up to date")
			} else {
				color.Green("All datasets up to date (checked %s)", n.LastCheck.Format("15:04:05"))
			}
			stop()
		}
	}
	return exitErr
}

// terminalFailure returns the failure that ended the cycle, if the
// snapshot shows one: idle phase with a recorded error that will not
// be retried.
func terminalFailure(s *models.Snapshot) *models.UpdateFailure {
	if s == nil || s.Phase.Phase != models.PhaseIdle {
		return nil
	}
	if s.LastError == nil || s.LastError.WillRetry() {
		return nil
	}
	return s.LastError
}

func printPhase(n update.Notification) {
	if n.Snapshot == nil {
		return
	}
	phase := n.Snapshot.Phase
	switch phase.Phase {
	case models.PhaseChecking:
		fmt.Printf("  checking %s...\n", phase.Series)
	case models.PhaseUpdating:
		fmt.Printf("  updating %s: %d%%\n", phase.Series, int(phase.Progress*100))
	}
}
