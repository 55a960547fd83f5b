package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// NewHashCmd creates the hash subcommand, which reads one password from stdin and prints
// its encoded hash for seeding users by hand.
func NewHashCmd() *cobra.Command {
	var scheme string

	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Hash a password read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hasher, err := newHasher(scheme)
			if err != nil {
				return err
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return oops.Code("HASH_INPUT").Wrap(err)
			}
			encoded, err := hasher.Hash(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return oops.Code("HASH_FAILED").Wrap(err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return err
		},
	}
	cmd.Flags().StringVar(&scheme, "scheme", "bcrypt", "hash scheme (bcrypt or argon2id)")
	return cmd
}
