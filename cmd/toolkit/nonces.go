package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var noncesCmd = &cobra.Command{
	Use:   "nonces",
	Short: "Manages the nonce pool",
	Long:  `Manages the nonce pool of the service`,
	Args:  cobra.ExactArgs(1),
}

var noncesCreateCmd = &cobra.Command{
	Use:   "create <count>",
	Short: "Creates nonce accounts",
	Long:  `Creates nonce accounts owned by the service authority and adds them to the pool`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("parsing count: %s", err)
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		entries, err := c.CreateNonces(cmd.Context(), count)
		if err != nil {
			return fmt.Errorf("creating nonces: %s", err)
		}
		return printJSON(entries)
	},
}

var noncesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Shows the nonce pool state",
	Long:  `Shows how many nonces are available, leased and reserved`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		stats, err := c.NonceStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting nonce stats: %s", err)
		}
		return printJSON(stats)
	},
}
