package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
)

var prefixesCmd = &cobra.Command{
	Use:   "prefixes",
	Short: "Show the prefixes each category grammar enumerates",
	Long: `Show how many prefixes each enabled category enumerates, and with --list
the prefixes themselves in scan order.

Examples:
  tmdbscan prefixes
  tmdbscan prefixes --category physical-disc3 --list`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, _ := cmd.Flags().GetStringSlice("category")
		list, _ := cmd.Flags().GetBool("list")

		categories := cfg.Categories()
		if len(names) > 0 {
			var err error
			categories, err = titleid.ParseCategories(names)
			if err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		total := 0
		for _, c := range categories {
			prefixes := titleid.EnumerateAll(c)
			total += len(prefixes)

			fmt.Fprintf(out, "%-16s %4d prefixes  %s/*.%s\n", c.String(), len(prefixes), c.Path(), c.Extension())
			if list {
				for i := 0; i < len(prefixes); i += 16 {
					end := i + 16
					if end > len(prefixes) {
						end = len(prefixes)
					}
					fmt.Fprintf(out, "  %s\n", strings.Join(prefixes[i:end], " "))
				}
			}
		}
		fmt.Fprintf(out, "%-16s %4d prefixes  %d title IDs\n", "total", total, total*titleid.SuffixSpace)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefixesCmd)

	prefixesCmd.Flags().StringSlice("category", nil, "limit output to these categories")
	prefixesCmd.Flags().Bool("list", false, "print every prefix")
}
