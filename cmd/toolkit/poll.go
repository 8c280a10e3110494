package main

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Creates and inspects polls",
	Long:  `Creates and inspects polls`,
	Args:  cobra.ExactArgs(1),
}

var pollCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a new poll",
	Long:  `Creates a new poll account paid by the service authority`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		p, err := c.CreatePoll(cmd.Context())
		if err != nil {
			return fmt.Errorf("creating poll: %s", err)
		}
		return printJSON(p)
	},
}

var pollGetCmd = &cobra.Command{
	Use:   "get <poll>",
	Short: "Shows a poll and its tally",
	Long:  `Shows a poll and its tally as stored on the ledger`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pollID, err := solana.PublicKeyFromBase58(args[0])
		if err != nil {
			return fmt.Errorf("parsing poll address: %s", err)
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		p, err := c.GetPoll(cmd.Context(), pollID)
		if err != nil {
			return fmt.Errorf("getting poll: %s", err)
		}
		return printJSON(p)
	},
}
