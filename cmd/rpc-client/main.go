// Command rpc-client resolves and calls procedures on an rpc-server.
//
//	rpc-client find add2
//	rpc-client call add2 --tag 127 --hex 7f
//	rpc-client call echo2 --tag 1234 --body abc
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sync-rpc/client"
	"sync-rpc/config"
	"sync-rpc/loadbalance"
	"sync-rpc/logging"
	"sync-rpc/message"
	"sync-rpc/registry"
	"sync-rpc/transport"
)

type globals struct {
	cfgFile string
	addr    string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "rpc-client",
		Short:         "Find and call remote procedures",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if g.addr != "" {
				cfg.Client.Address = g.addr
			}
			g.cfg = cfg

			g.logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
			return err
		},
	}

	root.PersistentFlags().StringVarP(&g.cfgFile, "config", "c", "", "TOML config file")
	root.PersistentFlags().StringVarP(&g.addr, "addr", "a", "", "server address; skips discovery")

	root.AddCommand(newFindCmd(g), newCallCmd(g))
	return root
}

func newFindCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "find NAME",
		Short: "Resolve a procedure name to its handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := g.callContext(cmd.Context())
			defer cancel()

			c, err := g.connect(ctx, args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			h, err := c.Find(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: handle %d\n", args[0], h.Index)
			return nil
		},
	}
}

func newCallCmd(g *globals) *cobra.Command {
	var (
		tag     int32
		body    string
		hexBody string
	)

	cmd := &cobra.Command{
		Use:   "call NAME",
		Short: "Find a procedure and call it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("body") && cmd.Flags().Changed("hex") {
				return errors.New("--body and --hex are mutually exclusive")
			}
			payload := message.Payload{Tag: tag}
			switch {
			case hexBody != "":
				b, err := hex.DecodeString(hexBody)
				if err != nil {
					return fmt.Errorf("--hex: %w", err)
				}
				payload.Body = b
			case body != "":
				payload.Body = []byte(body)
			}

			ctx, cancel := g.callContext(cmd.Context())
			defer cancel()

			c, err := g.connect(ctx, args[0])
			if err != nil {
				return err
			}
			defer c.Close()

			h, err := c.Find(ctx, args[0])
			if err != nil {
				return err
			}
			result, err := c.Call(ctx, h, payload)
			if err != nil {
				return err
			}
			printPayload(cmd, result)
			return nil
		},
	}

	cmd.Flags().Int32VarP(&tag, "tag", "t", 0, "argument tag")
	cmd.Flags().StringVarP(&body, "body", "b", "", "argument body as text")
	cmd.Flags().StringVar(&hexBody, "hex", "", "argument body as hex")
	return cmd
}

func printPayload(cmd *cobra.Command, p message.Payload) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tag:  %d\n", p.Tag)
	if p.Body == nil {
		fmt.Fprintln(out, "body: (none)")
		return
	}
	if printable(p.Body) {
		fmt.Fprintf(out, "body: %s\n", strconv.Quote(string(p.Body)))
	} else {
		fmt.Fprintf(out, "body: %s (%d bytes)\n", hex.EncodeToString(p.Body), len(p.Body))
	}
}

func printable(b []byte) bool {
	for _, c := range b {
		if c < 32 || c > 126 {
			return false
		}
	}
	return true
}

func (g *globals) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	if g.cfg.Client.CallTimeout > 0 {
		return context.WithTimeout(parent, g.cfg.Client.CallTimeout)
	}
	return context.WithCancel(parent)
}

// connect dials the configured address, or asks etcd who serves procedure
// when endpoints are configured and no address was given on the command line.
func (g *globals) connect(ctx context.Context, procedure string) (*client.Client, error) {
	tcfg := transport.Config{DialTimeout: g.cfg.Client.DialTimeout}
	opts := []client.Option{
		client.WithLogger(g.logger),
		client.WithMaxBodySize(g.cfg.Client.MaxBodySize),
	}

	if g.addr != "" || len(g.cfg.Registry.Endpoints) == 0 {
		return client.Dial(ctx, g.cfg.Client.Address, tcfg, opts...)
	}

	reg, err := registry.NewEtcdRegistry(g.cfg.Registry.Endpoints, g.cfg.Registry.DialTimeout, g.logger)
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	defer reg.Close()
	return client.DialProcedure(ctx, reg, loadbalance.New(g.cfg.Client.Balancer), procedure, tcfg, opts...)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
