package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"labeldesk/internal/ipc"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				switch {
				case resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				case resp.Message != "":
					fmt.Fprintf(cmd.OutOrStdout(), "Notification not sent: %s\n", resp.Message)
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	}
}
