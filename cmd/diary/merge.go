package main

import (
	"fmt"
	"log"

	"diary/internal/diary"
	"diary/internal/scheduler"

	"github.com/spf13/cobra"
)

func mergeCmd() *cobra.Command {
	var (
		userID uint64
		date   string
	)

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge pending journals once, or one user's journal with --user",
		Long: `Without flags, merge merges every journal from a previous day that is
still collecting, once, and exits.

With --user it merges that user's journal for --date (default today), even if
the day is not over yet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()

			if userID == 0 {
				refs := scheduler.New(a.svc, 0, log.Default()).RunOnce(ctx)
				for _, ref := range refs {
					fmt.Println(ref)
				}
				fmt.Printf("merged %d journal(s)\n", len(refs))
				return nil
			}

			day := a.svc.Today()
			if date != "" {
				if day, err = diary.ParseDate(date); err != nil {
					return err
				}
			}
			ref, err := a.svc.MergeJournal(ctx, userID, day)
			if err != nil {
				return err
			}
			if ref == "" {
				fmt.Printf("nothing to merge for user %d on %s\n", userID, day)
				return nil
			}
			fmt.Println(ref)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&userID, "user", 0, "user id to merge")
	cmd.Flags().StringVar(&date, "date", "", "day to merge (yyyy-mm-dd), default today")
	return cmd
}
