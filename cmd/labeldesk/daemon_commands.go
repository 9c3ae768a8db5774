package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"labeldesk/internal/api"
	"labeldesk/internal/daemonrun"
	"labeldesk/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Resume dispatching in a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Started {
					fmt.Fprintln(out, "Dispatching started")
					return nil
				}
				fmt.Fprintln(out, resp.Message)
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Pause dispatching; connected workers are dropped and items return to the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Stop(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Dispatching stopped")
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, store, and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, err := ctx.dialClient()
			if err != nil {
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				detail := "socket unavailable"
				if cfg := ctx.configValue(); cfg != nil {
					if pid := daemonrun.ReadPID(cfg); pid > 0 {
						detail = fmt.Sprintf("pid file names %d but the socket is unavailable", pid)
					}
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, detail, colorize))
				return nil
			}
			defer client.Close()

			resp, err := client.Status()
			if err != nil {
				return err
			}
			printStatus(stdout, resp.Status, colorize)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func printStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("Dispatching", statusOK, fmt.Sprintf("pid %d", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Dispatching", statusWarn, "stopped", colorize))
	}
	if status.APIAddress != "" {
		fmt.Fprintln(out, renderStatusLine("API", statusInfo, "http://"+status.APIAddress, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Uploads", statusInfo, status.UploadDir, colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Items", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Stored", statusInfo, strconv.Itoa(status.Store.Total), colorize))
	fmt.Fprintln(out, renderStatusLine("Complete", statusOK, strconv.Itoa(status.Store.Complete), colorize))
	incomplete := statusInfo
	// Incomplete items with nothing queued or held were never enqueued.
	if status.Running && status.Dispatch.Idle && status.Store.Incomplete > 0 {
		incomplete = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Incomplete", incomplete, strconv.Itoa(status.Store.Incomplete), colorize))
	fmt.Fprintln(out, renderStatusLine("Backlog", statusInfo, strconv.Itoa(status.Dispatch.Backlog), colorize))
	fmt.Fprintln(out, renderStatusLine("Assigned", statusInfo, strconv.Itoa(status.Dispatch.Assigned), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Sessions", colorize) {
		fmt.Fprintln(out, line)
	}
	if len(status.Dispatch.Sessions) == 0 {
		fmt.Fprintln(out, "No workers connected")
		return
	}
	rows := make([][]string, 0, len(status.Dispatch.Sessions))
	for _, session := range status.Dispatch.Sessions {
		current := session.Current
		if current == "" {
			current = "-"
		}
		rows = append(rows, []string{
			session.ID,
			current,
			strconv.Itoa(session.History),
			strings.Join(session.Redelivery, ", "),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Session", "Current", "History", "Redelivery"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		colorize,
	))
}
