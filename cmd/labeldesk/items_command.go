package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"labeldesk/internal/api"
	"labeldesk/internal/ipc"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var filter string
	var asJSON bool
	var idsOnly bool

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List stored items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ItemList(ipc.ItemListRequest{Filter: filter, Detailed: !idsOnly})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					encoder := json.NewEncoder(out)
					encoder.SetIndent("", "  ")
					return encoder.Encode(resp)
				}
				if idsOnly {
					for _, id := range resp.IDs {
						fmt.Fprintln(out, id)
					}
					return nil
				}
				if resp.Count == 0 {
					fmt.Fprintln(out, "No items")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Complete", "Fields", "Updated"},
					itemRows(resp.Items),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
					shouldColorize(out),
				))
				fmt.Fprintf(out, "%d item(s)\n", resp.Count)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only list complete or incomplete items")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw response as JSON")
	cmd.Flags().BoolVar(&idsOnly, "ids", false, "Print only item ids")
	return cmd
}

func itemRows(list []api.Item) [][]string {
	rows := make([][]string, 0, len(list))
	for _, item := range list {
		rows = append(rows, []string{item.ID, yesNo(item.Complete), summarizeFields(item.Result), item.UpdatedAt})
	}
	return rows
}

// summarizeFields renders set fields as key=value and unset ones as key=-.
func summarizeFields(result map[string]*string) string {
	keys := make([]string, 0, len(result))
	for key := range result {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		value := "-"
		if v := result[key]; v != nil {
			value = *v
		}
		parts = append(parts, key+"="+value)
	}
	return strings.Join(parts, " ")
}
