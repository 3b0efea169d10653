package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Keksclan/tickercache/auth"
	"github.com/Keksclan/tickercache/marketrpc"
	"github.com/Keksclan/tickercache/retry"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultAddr = "localhost:50051"

func (a *app) newTTLCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "ttl KEY...",
		Short: "Print the TTL each key resolves to",
		Long: `Print the TTL each key resolves to under the configured policy.

Examples:
  tickercache ttl stock:AAPL overview historical:MSFT:1y`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, keys []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			p, err := cfg.Policy()
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintf(a.stdout, "%s\t%s\n", k, p.Resolve(k))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")
	return cmd
}

// dial connects to a running server. Calls are retried while the server
// reports Unavailable.
func dial(addr string) (*marketrpc.Client, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	client := marketrpc.NewClient(conn, marketrpc.WithRetry(retry.Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Jitter:      0.2,
	}))
	return client, conn.Close, nil
}

func (a *app) newStatsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "List the keys cached by a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, closeConn, err := dial(addr)
			if err != nil {
				return err
			}
			defer closeConn()

			st, err := client.CacheStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d entries\n", st.Size)
			for _, k := range st.Keys {
				fmt.Fprintln(a.stdout, k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "Server address")
	return cmd
}

func (a *app) newClearCmd() *cobra.Command {
	var addr, token string
	cmd := &cobra.Command{
		Use:   "clear [PATTERN]",
		Short: "Remove cached entries from a running server",
		Long: `Remove the entries whose keys match PATTERN, or every entry when no
pattern is given. PATTERN may contain one '*'.

Examples:
  tickercache clear 'stock:*' --token $TICKERCACHE_ADMIN_TOKEN
  tickercache clear --token $TICKERCACHE_ADMIN_TOKEN`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req marketrpc.ClearRequest
			if len(args) == 1 {
				req.Pattern = args[0]
			}

			client, closeConn, err := dial(addr)
			if err != nil {
				return err
			}
			defer closeConn()

			resp, err := client.ClearCache(auth.Outgoing(cmd.Context(), token), &req)
			if err != nil {
				return err
			}
			if resp.Removed < 0 {
				fmt.Fprintln(a.stdout, "cache cleared")
			} else {
				fmt.Fprintf(a.stdout, "%d entries removed\n", resp.Removed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "Server address")
	cmd.Flags().StringVar(&token, "token", os.Getenv("TICKERCACHE_ADMIN_TOKEN"), "Admin bearer token")
	return cmd
}
