package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/seiken-dev/jiten/internal/services/update"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete all locally stored dictionary data",
	Args:  cobra.NoArgs,
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false,
		"Skip the confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !deleteYes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to delete without confirmation; pass --yes")
		}
		fmt.Print("Delete all dictionary data? [y/N] ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted")
			return nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = app.Updates.Run(ctx)
	}()

	app.Updates.Delete()

	var exitErr error
	timeout := time.After(30 * time.Second)
loop:
	for {
		select {
		case n, ok := <-app.Updates.Notifications():
			if !ok {
				break loop
			}
			switch n.Type {
			case update.NotifBreadcrumb:
				fmt.Println(n.Message)
				break loop
			case update.NotifError:
				exitErr = n.Err
				break loop
			}
		case <-timeout:
			exitErr = fmt.Errorf("timed out waiting for delete")
			break loop
		}
	}

	cancel()
	<-runDone
	return exitErr
}
