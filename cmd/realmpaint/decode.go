package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/omochice/realm-paint/internal/status"
	"github.com/omochice/realm-paint/pkg/codec"
	"github.com/omochice/realm-paint/pkg/protocol"
)

func decodeCmd() *cobra.Command {
	var (
		text    string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode one binary frame and print it as JSON",
		Long: `Decode a single protocol frame given as hexadecimal and print it as JSON.
Arguments are joined, so a frame may be split across several words.
Whitespace, colons and a leading 0x are ignored.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := codec.ParseTextEncoding(text)
			if err != nil {
				return err
			}
			data, err := parseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			msg, err := protocol.Codec{Text: enc}.Decode(data)
			if err != nil {
				return err
			}
			s, err := status.Message(msg)
			if err != nil {
				return err
			}
			out, err := status.Marshal(s, !compact)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "latin1", "String encoding on the wire (latin1 or utf8)")
	cmd.Flags().BoolVar(&compact, "compact", false, "Print JSON on a single line")

	return cmd
}

func parseHex(raw string) ([]byte, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	raw = strings.NewReplacer(" ", "", "\t", "", "\n", "", ":", "").Replace(raw)
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return data, nil
}
