package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/textileio/go-durablevote/pkg/client"
)

var cliName = "toolkit"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var rootCmd = &cobra.Command{
	Use:   cliName,
	Short: "toolkit is a CLI for durable vote operators",
	Long:  `toolkit is a CLI for durable vote operators managing polls, nonces and votes`,
	Args:  cobra.ExactArgs(0),
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1) // nolint
	}
}

func init() {
	rootCmd.PersistentFlags().String("api", "http://localhost:8080", "URL of the durable vote API")

	rootCmd.AddCommand(walletCmd)
	walletCreateCmd.Flags().String("filename", "privatekey.b58", "Filename to store the base58 secret key")
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletAddressCmd)

	rootCmd.AddCommand(pollCmd)
	pollCmd.AddCommand(pollCreateCmd)
	pollCmd.AddCommand(pollGetCmd)

	rootCmd.AddCommand(noncesCmd)
	noncesCmd.AddCommand(noncesCreateCmd)
	noncesCmd.AddCommand(noncesStatsCmd)

	rootCmd.AddCommand(voteCmd)
	voteCmd.Flags().String("privatekey", "", "base58 secret key of the voter")
	voteCmd.Flags().String("privatekey-file", "", "file holding the base58 secret key of the voter")

	rootCmd.AddCommand(votesCmd)
	votesCmd.Flags().String("status", "", "only list votes with this status (pending, submitted or failed)")

	rootCmd.AddCommand(countCmd)
	countCmd.Flags().Bool("requeue", false, "move failed votes back to pending before counting")
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	api, err := cmd.Flags().GetString("api")
	if err != nil {
		return nil, fmt.Errorf("failed to parse api flag: %s", err)
	}
	c, err := client.NewClient(api)
	if err != nil {
		return nil, fmt.Errorf("creating client: %s", err)
	}
	return c, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %s", err)
	}
	fmt.Println(string(out))
	return nil
}
