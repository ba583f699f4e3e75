package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

var tokenCmd = &cobra.Command{
	Use:   "token TITLEID...",
	Short: "Print the HMAC token and metadata URL for title IDs",
	Long: `Print the derived token and the URL the scanner would probe for each
title ID. Nothing is fetched.

Examples:
  tmdbscan token SCUS97399
  tmdbscan token CUSA00001 BCES00001`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := tmdb.ParseKey(cfg.TMDB.HMACKey)
		if err != nil {
			return fmt.Errorf("invalid hmac key: %w", err)
		}
		resolver := tmdb.NewResolver(tmdb.NewDeriver(key), tmdb.NewBuilder(cfg.TMDB.Domain))

		out := cmd.OutOrStdout()
		for _, arg := range args {
			id := strings.ToUpper(strings.TrimSpace(arg))
			if len(id) != titleid.Length {
				return fmt.Errorf("%q: expected a %d-character title ID", arg, titleid.Length)
			}
			target, err := titleid.ParseTarget(id)
			if err != nil {
				return err
			}

			task := resolver.Resolve(id, target.Category)
			fmt.Fprintf(out, "%s  %-16s %s\n", id, target.Category.String(), resolver.Token(id))
			fmt.Fprintf(out, "  %s\n", task.URL)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
