package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/textileio/go-durablevote/pkg/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Offers wallet utilites",
	Long:  `Offers wallet utilites`,
	Args:  cobra.ExactArgs(1),
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a Solana keypair",
	Long:  `Creates a Solana keypair and stores its base58 secret key in a file`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, err := cmd.Flags().GetString("filename")
		if err != nil {
			return errors.New("failed to parse filename")
		}
		sk, err := solana.NewRandomPrivateKey()
		if err != nil {
			return fmt.Errorf("generate key: %s", err)
		}

		if err := os.WriteFile(filename, []byte(sk.String()), 0o600); err != nil {
			return fmt.Errorf("writing to file %s: %s", filename, err)
		}

		fmt.Printf("Wallet address %s created\n", sk.PublicKey())
		fmt.Printf("Secret key saved in %s\n", filename)

		return nil
	},
}

var walletAddressCmd = &cobra.Command{
	Use:   "address <secret key>",
	Short: "Returns the address of a Solana keypair",
	Long:  `Returns the address of a Solana keypair given its base58 secret key`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := wallet.NewWallet(args[0])
		if err != nil {
			return fmt.Errorf("decode key: %s", err)
		}

		fmt.Printf("Wallet address %s\n", w.PublicKey())

		return nil
	},
}

// loadWallet reads the voter wallet from the privatekey or privatekey-file flags.
func loadWallet(cmd *cobra.Command) (*wallet.Wallet, error) {
	sk, err := cmd.Flags().GetString("privatekey")
	if err != nil {
		return nil, errors.New("failed to parse privatekey")
	}
	if sk == "" {
		filename, err := cmd.Flags().GetString("privatekey-file")
		if err != nil {
			return nil, errors.New("failed to parse privatekey-file")
		}
		if filename == "" {
			return nil, errors.New("either privatekey or privatekey-file is required")
		}
		content, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %s", filename, err)
		}
		sk = strings.TrimSpace(string(content))
	}
	return wallet.NewWallet(sk)
}
