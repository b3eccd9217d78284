package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arohanajit/WSN-Formation/pkg/api"
	"github.com/arohanajit/WSN-Formation/pkg/client"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "wsnctl",
		Short:         "CLI tool to drive the sensor network formation simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if baseURL == "" {
				baseURL = os.Getenv("WSN_BASE_URL")
				if baseURL == "" {
					baseURL = "http://localhost:8080"
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "", "Base URL of the simulator (can also use WSN_BASE_URL env variable)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		pingCmd(),
		addCmd(),
		getCmd(),
		listCmd(),
		seedCmd(),
		clusterHeadCmd(),
		beaconCmd(),
		joinCmd(),
		electCmd(),
		backupsCmd(),
		readCmd(),
		respondCmd(),
		deactivateCmd(),
		activateCmd(),
		rankCmd(),
		statsCmd(),
		roleCmd(),
	)
	return rootCmd
}

func newClient() *client.Client {
	return client.NewClient(baseURL)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func parseAddress(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}

func parseAddresses(list string) ([]uint64, error) {
	out := make([]uint64, 0)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := parseAddress(part)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// addressCmd builds a command taking a single node address argument
func addressCmd(use, short string, run func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <address>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			return run(ctx, cmd, newClient(), addr)
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connection to the simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			health, err := newClient().CheckConnection(ctx)
			if err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ping successful: %d nodes, version %d\n", health.Nodes, health.Version)
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var (
		address   uint64
		energy    uint64
		neighbors string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a sensor node",
		RunE: func(cmd *cobra.Command, args []string) error {
			inRange, err := parseAddresses(neighbors)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			index, err := newClient().AddNode(ctx, api.AddNodeRequest{
				Address:          address,
				EnergyLevel:      energy,
				WithinRangeNodes: inRange,
			})
			if err != nil {
				return fmt.Errorf("add failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %d registered at index %d\n", address, index)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&address, "address", 0, "Node address")
	cmd.Flags().Uint64Var(&energy, "energy", 0, "Remaining energy level")
	cmd.Flags().StringVar(&neighbors, "neighbors", "", "Comma separated addresses within radio range")
	cmd.MarkFlagRequired("address")
	return cmd
}

func getCmd() *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "get [address]",
		Short: "Show a node by address, or by registration index with --index",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			c := newClient()

			var (
				node api.Node
				err  error
			)
			switch {
			case len(args) == 1:
				addr, perr := parseAddress(args[0])
				if perr != nil {
					return perr
				}
				node, err = c.GetNode(ctx, addr)
			case index >= 0:
				node, err = c.GetNodeAt(ctx, index)
			default:
				return cmd.Help()
			}
			if err != nil {
				return fmt.Errorf("get failed: %w", err)
			}
			return printJSON(cmd, node)
		},
	}
	cmd.Flags().IntVar(&index, "index", -1, "Registration index")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List node addresses in registration order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			addrs, err := newClient().ListNodes(ctx)
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}
			for _, a := range addrs {
				fmt.Fprintln(cmd.OutOrStdout(), a)
			}
			return nil
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "seed <star|three-layer>",
		Short:     "Register one of the reference topologies",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"star", "three-layer"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			added, err := newClient().Seed(ctx, args[0])
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d nodes\n", added)
			return nil
		},
	}
}

func clusterHeadCmd() *cobra.Command {
	var level int
	cmd := addressCmd("cluster-head", "Bootstrap a node as cluster head",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			if err := c.RegisterAsClusterHead(ctx, addr, level); err != nil {
				return fmt.Errorf("cluster-head failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %d is a cluster head on level %d\n", addr, level)
			return nil
		})
	cmd.Flags().IntVar(&level, "level", 0, "Network level")
	return cmd
}

func beaconCmd() *cobra.Command {
	return addressCmd("beacon", "Broadcast a beacon from a node",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			delivered, err := c.SendBeacon(ctx, addr)
			if err != nil {
				return fmt.Errorf("beacon failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Beacon from %d delivered to %d nodes\n", addr, delivered)
			return nil
		})
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join",
		Short: "Send join requests from every positioned, unjoined node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			requests, err := newClient().SendJoinRequests(ctx)
			if err != nil {
				return fmt.Errorf("join failed: %w", err)
			}
			for _, r := range requests {
				fmt.Fprintf(cmd.OutOrStdout(), "%d -> %d\n", r.From, r.To)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d join requests\n", len(requests))
			return nil
		},
	}
}

func electCmd() *cobra.Command {
	var probability int
	cmd := addressCmd("elect", "Elect cluster heads among a head's join requests",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			var p *int
			if cmd.Flags().Changed("probability") {
				p = &probability
			}
			result, err := c.ElectClusterHeads(ctx, addr, p)
			if err != nil {
				return fmt.Errorf("elect failed: %w", err)
			}
			return printJSON(cmd, result)
		})
	cmd.Flags().IntVar(&probability, "probability", 50, "Cluster head probability in percent")
	return cmd
}

func backupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "Identify backup cluster heads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			assignments, err := newClient().IdentifyBackupClusterHeads(ctx)
			if err != nil {
				return fmt.Errorf("backups failed: %w", err)
			}
			for _, a := range assignments {
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %v\n", a.Address, a.Backups)
			}
			return nil
		},
	}
}

func readCmd() *cobra.Command {
	var reading int64
	cmd := addressCmd("read", "Inject a sensor reading at a node",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			delivery, err := c.ReadSensorInput(ctx, addr, reading)
			if err != nil {
				return fmt.Errorf("read failed: %w", err)
			}
			return printJSON(cmd, delivery)
		})
	cmd.Flags().Int64Var(&reading, "value", 0, "Reading value")
	cmd.MarkFlagRequired("value")
	return cmd
}

func respondCmd() *cobra.Command {
	return addressCmd("respond", "Trigger matching actuators below a node",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			triggers, err := c.RespondToSensorInput(ctx, addr)
			if err != nil {
				return fmt.Errorf("respond failed: %w", err)
			}
			for _, t := range triggers {
				fmt.Fprintf(cmd.OutOrStdout(), "Actuator %d triggered by %d: %s\n", t.Address, t.Reading, t.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d actuators triggered\n", len(triggers))
			return nil
		})
}

func deactivateCmd() *cobra.Command {
	return addressCmd("deactivate", "Simulate a node failure",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			if err := c.Deactivate(ctx, addr); err != nil {
				return fmt.Errorf("deactivate failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %d deactivated\n", addr)
			return nil
		})
}

func activateCmd() *cobra.Command {
	return addressCmd("activate", "Bring a failed node back",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			if err := c.Activate(ctx, addr); err != nil {
				return fmt.Errorf("activate failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Node %d activated\n", addr)
			return nil
		})
}

func rankCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rank",
		Short: "List nodes by remaining energy, highest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			nodes, err := newClient().Rank(ctx)
			if err != nil {
				return fmt.Errorf("rank failed: %w", err)
			}
			for i, n := range nodes {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. %d energy=%d %s\n", i+1, n.Address, n.EnergyLevel, n.NodeType)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			stats, err := newClient().Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}
			return printJSON(cmd, stats)
		},
	}
}

func roleCmd() *cobra.Command {
	var (
		role      string
		message   string
		threshold int64
		condition string
	)
	cmd := addressCmd("role", "Show a node's role, or assign one with --set",
		func(ctx context.Context, cmd *cobra.Command, c *client.Client, addr uint64) error {
			var (
				entry api.Role
				err   error
			)
			if role == "" {
				entry, err = c.GetRole(ctx, addr)
			} else {
				req := api.RoleRequest{Role: role, TriggerMessage: message}
				if cmd.Flags().Changed("threshold") {
					req.TriggerThreshold = &threshold
				}
				if condition != "" {
					req.TriggerCondition = &condition
				}
				entry, err = c.AssignRole(ctx, addr, req)
			}
			if err != nil {
				return fmt.Errorf("role failed: %w", err)
			}
			return printJSON(cmd, entry)
		})
	cmd.Flags().StringVar(&role, "set", "", "Assign a role: default, sensor, controller or actuator")
	cmd.Flags().StringVar(&message, "message", "", "Actuator trigger message")
	cmd.Flags().Int64Var(&threshold, "threshold", 0, "Actuator trigger threshold")
	cmd.Flags().StringVar(&condition, "condition", "", "Actuator trigger condition: gt, lt or eq")
	return cmd
}
