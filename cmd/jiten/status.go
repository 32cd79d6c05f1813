package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/seiken-dev/jiten/internal/models"
	"github.com/seiken-dev/jiten/internal/presenter"
	"github.com/seiken-dev/jiten/internal/services/update"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dataset versions and update state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = app.Updates.Run(ctx)
	}()

	app.Updates.Query()

	var snap *models.Snapshot
	timeout := time.After(30 * time.Second)
loop:
	for {
		select {
		case n, ok := <-app.Updates.Notifications():
			if !ok {
				break loop
			}
			if n.Type == update.NotifStateUpdated {
				snap = n.Snapshot
				break loop
			}
		case <-timeout:
			break loop
		}
	}

	cancel()
	<-runDone

	if snap == nil {
		return fmt.Errorf("no state available; is the dataset store accessible?")
	}

	printSnapshot(snap)
	return nil
}

func printSnapshot(snap *models.Snapshot) {
	bold := color.New(color.Bold)

	bold.Println("Datasets")
	for _, ds := range models.AllDatasets() {
		state := snap.Datasets[ds]
		line := fmt.Sprintf("  %-10s %-8s", ds, state.State)
		if state.Version != nil {
			line += fmt.Sprintf(" v%s (%s)", state.Version, state.Version.Lang)
		}
		switch state.State {
		case models.LoadStateReady:
			color.Green(line)
		case models.LoadStateError:
			color.Red(line)
		default:
			fmt.Println(line)
		}
	}

	look := presenter.Render(snap, true, presenter.IconDefault)
	fmt.Println()
	bold.Print("Status  ")
	fmt.Println(look.Tooltip)

	if snap.LastError != nil {
		bold.Print("Last error  ")
		color.Red("%s [%s]", snap.LastError.Message(), snap.LastError.Kind())
	}
}
