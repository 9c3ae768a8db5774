package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"labeldesk/internal/ingest"
	"labeldesk/internal/ipc"
)

func newAddFileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path>",
		Short: "Copy an image into the upload directory and offer it to workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}
			if !ingest.IsImage(info.Name()) {
				return fmt.Errorf("unsupported image extension %q", filepath.Ext(info.Name()))
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AddFile(absPath)
				if err != nil {
					return err
				}
				if resp == nil {
					return errors.New("empty response from daemon")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s as item %s\n", filepath.Base(absPath), resp.Item.ID)
				return nil
			})
		},
	}
}
