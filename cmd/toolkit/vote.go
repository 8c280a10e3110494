package main

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var voteCmd = &cobra.Command{
	Use:   "vote <poll> <candidate>",
	Short: "Casts a vote",
	Long:  `Prepares a durable vote transaction, signs it with the voter key and stages it. Candidates are eth, sol and pol.`, // nolint
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pollID, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("parsing poll address: %s", err)
		}
		voter, err := loadWallet(cmd)
		if err != nil {
			return fmt.Errorf("loading voter wallet: %s", err)
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		v, err := c.Vote(cmd.Context(), pollID, args[1], voter)
		if err != nil {
			return fmt.Errorf("voting: %s", err)
		}
		return printJSON(v)
	},
}

var votesCmd = &cobra.Command{
	Use:   "votes <poll>",
	Short: "Lists staged votes",
	Long:  `Lists the votes of a poll staged for counting`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pollID, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("parsing poll address: %s", err)
		}
		status, err := cmd.Flags().GetString("status")
		if err != nil {
			return errors.New("failed to parse status")
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		votes, err := c.ListVotes(cmd.Context(), pollID, status)
		if err != nil {
			return fmt.Errorf("listing votes: %s", err)
		}
		return printJSON(votes)
	},
}

var countCmd = &cobra.Command{
	Use:   "count <poll>",
	Short: "Counts the staged votes",
	Long:  `Submits the pending votes of a poll to the ledger and shows the resulting tally`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pollID, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("parsing poll address: %s", err)
		}
		requeue, err := cmd.Flags().GetBool("requeue")
		if err != nil {
			return errors.New("failed to parse requeue")
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		if requeue {
			n, err := c.Requeue(cmd.Context(), pollID)
			if err != nil {
				return fmt.Errorf("requeueing failed votes: %s", err)
			}
			fmt.Printf("%d failed votes requeued\n", n)
		}
		res, err := c.Count(cmd.Context(), pollID)
		if err != nil {
			return fmt.Errorf("counting votes: %s", err)
		}
		return printJSON(res)
	},
}
