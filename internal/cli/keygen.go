package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"filippo.io/age"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tis24dev/savesync/internal/archive"
	"github.com/tis24dev/savesync/internal/types"
)

// Overridable in tests.
var (
	readPassword = term.ReadPassword
	stdinFd      = func() int { return int(syscall.Stdin) }
)

func keygenCmd(opts *globalOptions) *cobra.Command {
	var (
		passphrase bool
		output     string
		force      bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create an age recipient for archive encryption",
		Long: `Generate an X25519 identity and print its recipient for AGE_RECIPIENT.
With --passphrase the recipient is derived from a passphrase instead, matching
what AGE_PASSPHRASE does; the passphrase alone decrypts the archives.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if passphrase {
				recipient, err := recipientFromPrompt(cmd.ErrOrStderr())
				if err != nil {
					return withCode(types.ExitUsageError, err)
				}
				fmt.Fprintf(out, "✓ Recipient: %s\n", recipient)
				return nil
			}

			identity, err := age.GenerateX25519Identity()
			if err != nil {
				return fmt.Errorf("generate identity: %w", err)
			}
			recipient := identity.Recipient().String()

			if output == "" {
				fmt.Fprint(out, identityFile(identity))
				fmt.Fprintf(cmd.ErrOrStderr(), "Public key: %s\n", recipient)
				return nil
			}
			if err := writeIdentityFile(output, identity, force); err != nil {
				return withCode(types.ExitGenericError, err)
			}
			fmt.Fprintf(out, "✓ Identity written to %s\n", output)
			fmt.Fprintf(out, "✓ Recipient: %s\n", recipient)
			return nil
		},
	}
	cmd.Flags().BoolVar(&passphrase, "passphrase", false, "Derive the recipient from a passphrase")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the identity to this file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing identity file")
	return cmd
}

func recipientFromPrompt(w io.Writer) (string, error) {
	fmt.Fprint(w, "Passphrase: ")
	first, err := readPassword(stdinFd())
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	defer zero(first)

	if err := archive.ValidatePassphraseStrength(first); err != nil {
		return "", err
	}

	fmt.Fprint(w, "Repeat passphrase: ")
	second, err := readPassword(stdinFd())
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	defer zero(second)

	if !bytes.Equal(first, second) {
		return "", errors.New("passphrases do not match")
	}
	return archive.DeriveRecipient(string(first))
}

func identityFile(identity *age.X25519Identity) string {
	return fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().Format(time.RFC3339), identity.Recipient(), identity)
}

func writeIdentityFile(path string, identity *age.X25519Identity, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("identity file already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create identity directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(identityFile(identity)), 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write identity: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install identity: %w", err)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
