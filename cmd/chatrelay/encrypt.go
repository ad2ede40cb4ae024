package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chatrelay/internal/infra/config"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [value]",
	Short: "Encrypt a secret for use in config.yaml",
	Long: `Encrypt an API key (or any secret) with a passphrase. Paste the
output into config.yaml prefixed with "enc:"; the server decrypts it at
startup when CHATRELAY_CONFIG_KEY holds the same passphrase.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprint(os.Stderr, "passphrase: ")
		passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("read passphrase: %w", err)
		}
		if len(passphrase) == 0 {
			return fmt.Errorf("passphrase must not be empty")
		}

		encrypted, err := config.EncryptValue(args[0], string(passphrase))
		if err != nil {
			return fmt.Errorf("encrypt: %w", err)
		}

		fmt.Printf("enc:%s\n", encrypted)
		return nil
	},
}
