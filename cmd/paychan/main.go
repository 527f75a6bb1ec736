// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/luxfi/geth/common"
	"github.com/spf13/cobra"

	"github.com/luxfi/paychan"
)

const privateKeyEnv = "PAYCHAN_PRIVATE_KEY"

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paychan",
	Short: "Payment channel message and ledger monitoring tool",
	Long: `paychan creates, signs and inspects off-chain payment channel messages
and monitors the channel manager contract on the ledger.`,
	Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(waitTxCmd)

	hashCmd.Flags().StringP("file", "f", "-", "Message JSON file, - for stdin")

	signCmd.Flags().StringP("file", "f", "-", "Message JSON file, - for stdin")
	signCmd.Flags().StringP("key", "k", "", "Hex private key, defaults to $"+privateKeyEnv)

	verifyCmd.Flags().StringP("file", "f", "-", "Message JSON file, - for stdin")
	verifyCmd.Flags().StringP("signer", "s", "", "Expected signer address")
	_ = verifyCmd.MarkFlagRequired("signer")
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random secret and its hash lock",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pair, err := paychan.GenerateRandomSecretHashPair()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]string{
			"secret":   pair.Secret.Hex(),
			"hashLock": pair.Hash.Hex(),
		})
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Print the class type, hash and signer of a message",
	RunE: func(cmd *cobra.Command, _ []string) error {
		msg, err := readSigned(cmd)
		if err != nil {
			return protocolFailure(cmd.OutOrStdout(), err)
		}
		out := map[string]any{
			"classType": msg.ClassType(),
			"hash":      msg.Hash().Hex(),
			"signed":    msg.IsSigned(),
		}
		if msg.IsSigned() {
			from, err := msg.From()
			if err != nil {
				return protocolFailure(cmd.OutOrStdout(), err)
			}
			out["from"] = from.Hex()
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign an unsigned message and print it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, _ := cmd.Flags().GetString("key")
		if key == "" {
			key = os.Getenv(privateKeyEnv)
		}
		if key == "" {
			return fmt.Errorf("no private key given, use --key or $%s", privateKeyEnv)
		}
		signer, err := paychan.NewSignerFromHex(key)
		if err != nil {
			return err
		}

		msg, err := readSigned(cmd)
		if err != nil {
			return err
		}
		if err := msg.Sign(signer); err != nil {
			return err
		}
		data, err := paychan.Serialize(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that a message was signed by the expected address",
	RunE: func(cmd *cobra.Command, _ []string) error {
		expected, _ := cmd.Flags().GetString("signer")
		if !common.IsHexAddress(expected) {
			return fmt.Errorf("invalid signer address %q", expected)
		}
		msg, err := readSigned(cmd)
		if err != nil {
			return protocolFailure(cmd.OutOrStdout(), err)
		}
		if err := paychan.VerifySigner(msg, common.HexToAddress(expected)); err != nil {
			return protocolFailure(cmd.OutOrStdout(), err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return err
	},
}

func readSigned(cmd *cobra.Command) (paychan.Signed, error) {
	path, _ := cmd.Flags().GetString("file")

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(cmd.InOrStdin(), paychan.MaxMessageSize+1))
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return paychan.DeserializeSigned([]byte(strings.TrimSpace(string(data))))
}

// protocolFailure prints the coded form of a decode or verification failure
// and returns it. Other errors are returned unchanged.
func protocolFailure(w io.Writer, err error) error {
	coded := paychan.ToError(err)
	if coded == nil {
		return err
	}
	if perr := printJSON(w, map[string]any{
		"code":    coded.Code,
		"message": coded.Message,
	}); perr != nil {
		return perr
	}
	return coded
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
