package main

import (
	"errors"
	"fmt"

	"diary/internal/diary"

	"github.com/spf13/cobra"
)

func issueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Maintain the published issue of a merged journal",
	}
	cmd.AddCommand(issueCloseCmd())
	cmd.AddCommand(issueLabelCmd())
	return cmd
}

func issueCloseCmd() *cobra.Command {
	var userID uint64

	cmd := &cobra.Command{
		Use:   "close [yyyy-mm-dd]",
		Short: "Close the issue a journal was published as",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ref, err := journalRef(cmd, userID, args[0])
			if err != nil {
				return err
			}
			defer a.close()
			return a.github.Close(cmd.Context(), ref)
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "owner of the journal")
	return cmd
}

func issueLabelCmd() *cobra.Command {
	var userID uint64

	cmd := &cobra.Command{
		Use:   "label [yyyy-mm-dd] [label...]",
		Short: "Add labels to the issue a journal was published as",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ref, err := journalRef(cmd, userID, args[0])
			if err != nil {
				return err
			}
			defer a.close()
			return a.github.AddLabels(cmd.Context(), ref, args[1:])
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "owner of the journal")
	return cmd
}

// journalRef resolves a merged journal's issue reference.
func journalRef(cmd *cobra.Command, userID uint64, date string) (*app, string, error) {
	if userID == 0 {
		return nil, "", errors.New("--user is required")
	}
	day, err := diary.ParseDate(date)
	if err != nil {
		return nil, "", err
	}
	a, err := newApp()
	if err != nil {
		return nil, "", err
	}
	s, err := a.svc.Summary(cmd.Context(), userID, day)
	if err != nil {
		a.close()
		return nil, "", err
	}
	if s.ExternalRef == "" {
		a.close()
		return nil, "", fmt.Errorf("journal %s of user %d is not merged", day, userID)
	}
	return a, s.ExternalRef, nil
}
