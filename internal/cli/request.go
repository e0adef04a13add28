package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"github.com/sufield/mvrp/pkg/mvrp"
)

// responseView is the structured form printed by --format json and yaml.
type responseView struct {
	Version     string `json:"version" yaml:"version"`
	Code        int    `json:"code" yaml:"code"`
	Reason      string `json:"reason" yaml:"reason"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Body        string `json:"body" yaml:"body"`
}

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request METHOD TARGET [BODY]",
		Short: "Send one MVRP request and print the response",
		Long: `Send one MVRP request and print the response.

The client verifies the server certificate against --ca and expects it to name
--server-name, or the host part of --address when that is unset.

Examples:
  mvrp request READ /widgets/7 --key client.key --cert client.crt --ca ca.crt
  mvrp request CREATE /notes "hello" --format json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.RangeArgs(2, 3)(cmd, args); err != nil {
				return fmt.Errorf("%w: %v", ErrUsage, err)
			}
			return nil
		},
		RunE: runRequest,
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return []string{
				string(mvrp.MethodOptions), string(mvrp.MethodCreate), string(mvrp.MethodRead),
				string(mvrp.MethodEmit), string(mvrp.MethodBurn),
			}, cobra.ShellCompDirectiveNoFileComp
		},
	}

	f := cmd.Flags()
	f.String("address", "", "Server address (required)")
	f.String("key", "", "Client private key (PEM)")
	f.String("cert", "", "Client certificate (PEM)")
	f.String("ca", "", "CA certificate the server must chain to")
	f.String("server-name", "", "Expected server name, defaults to the host of --address")
	f.String("peer-id", "", "SPIFFE ID the server certificate must carry")
	f.Int("max-message-size", 1024, "Largest response read in one go, in bytes")
	f.Duration("dial-timeout", 0, "Connect and handshake timeout, 0 for none")
	f.Duration("read-timeout", 0, "Response read timeout, 0 for none")
	f.Duration("write-timeout", 0, "Request write timeout, 0 for none")
	f.StringP("format", "f", "raw", "Output format (raw, json, yaml)")

	_ = cmd.MarkFlagFilename("key", "pem", "key")
	_ = cmd.MarkFlagFilename("cert", "pem", "crt")
	_ = cmd.MarkFlagFilename("ca", "pem", "crt")
	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"raw", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runRequest(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("%w: failed to get format flag: %v", ErrUsage, err)
	}
	switch format {
	case "raw", "json", "yaml":
	default:
		return fmt.Errorf("%w: unsupported format %q, use 'raw', 'json' or 'yaml'", ErrUsage, format)
	}

	loader, err := loaderFor(cmd)
	if err != nil {
		return err
	}
	cfg, err := loader.LoadClient()
	if err != nil {
		return classify(err)
	}
	logger, err := newLogger(cmd, cfg.Log)
	if err != nil {
		return err
	}

	client, err := mvrp.NewClient(cfg, mvrp.WithClientLogger(logger))
	if err != nil {
		return classify(err)
	}

	method, target := mvrp.Method(args[0]), args[1]
	var body string
	if len(args) == 3 {
		body = args[2]
	}

	raw, err := client.Send(cmd.Context(), method, target, body)
	if err != nil {
		return classify(err)
	}
	if format == "raw" {
		_, err := io.WriteString(cmd.OutOrStdout(), raw)
		return err
	}

	resp, err := mvrp.ParseResponse(raw)
	if err != nil {
		return classify(err)
	}
	return printResponse(cmd.OutOrStdout(), format, resp)
}

func printResponse(w io.Writer, format string, resp *mvrp.Response) error {
	view := responseView{
		Version:     resp.Version,
		Code:        resp.Status.Code,
		Reason:      resp.Status.Reason,
		ContentType: resp.ContentType,
		Body:        resp.Body,
	}
	if format == "yaml" {
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		if err := encoder.Encode(view); err != nil {
			return fmt.Errorf("%w: failed to encode response as YAML: %v", ErrInternal, err)
		}
		return nil
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(view); err != nil {
		return fmt.Errorf("%w: failed to encode response as JSON: %v", ErrInternal, err)
	}
	return nil
}
