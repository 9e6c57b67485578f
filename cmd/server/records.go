package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/browserbase-control/internal/store"
)

func newRecordsCmd(opts *rootOptions) *cobra.Command {
	var withCredentials bool

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List durable session records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Storage.SQLitePath == "" {
				return errors.New("SQLITE_PATH is empty: records are kept in memory only")
			}

			db, err := store.OpenSQLite(cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tCAMPAIGN\tCREATED\tCREDENTIALS")
			for _, rec := range records {
				count := "-"
				if withCredentials {
					creds, err := db.Credentials(cmd.Context(), rec.SessionToken)
					if err != nil {
						return err
					}
					count = fmt.Sprint(len(creds))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.SessionToken, rec.CampaignID, rec.CreatedAt.Format(time.RFC3339), count)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&withCredentials, "credentials", false, "count captured credentials per record")
	return cmd
}
