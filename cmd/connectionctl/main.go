// Command connectionctl is a small CLI (C15) exercising the connection
// façade end to end against a running agency, grounded on findy-agent's
// cmds.Cmd/Result calling convention (cmds/agent/export.go,
// cmds/agency/ping.go): validate configuration, execute one operation,
// print a plain-text Result. Unlike the teacher's in-process cmds.Cmd
// structs, each operation here is a cobra subcommand, following the CLI
// shape used elsewhere in the retrieved example pack (spf13/cobra).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/findy-network/findy-agent-conn/agency/grpcagency"
	"github.com/findy-network/findy-agent-conn/agentinfo"
	"github.com/findy-network/findy-agent-conn/config"
	"github.com/findy-network/findy-agent-conn/connection"
	"github.com/findy-network/findy-agent-conn/crypto/ed25519box"
	"github.com/findy-network/findy-agent-conn/diddoc"
	"github.com/findy-network/findy-agent-conn/findyagentconn"
	"github.com/findy-network/findy-agent-conn/message"
	"github.com/findy-network/findy-agent-conn/snapshotstore"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	settings config.Settings
	core     *findyagentconn.Core
	store    *snapshotstore.Store

	snapshotDBPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "connectionctl:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "connectionctl",
	Short: "connectionctl drives the Aries connection-protocol core from the command line",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		settings, err = config.Load()
		if err != nil {
			return err
		}
		agentinfo.RetryMax = settings.UpdateStateRetryMax

		store, err = snapshotstore.Open(snapshotDBPath)
		if err != nil {
			return err
		}

		token, tokenErr := grpcagency.IssueToken(settings.CallerAgentDID, []byte(settings.AgencyAuthSecret), 24*time.Hour)
		if tokenErr != nil {
			return tokenErr
		}
		client, dialErr := grpcagency.Dial(settings.AgencyGRPCAddr, token)
		if dialErr != nil {
			return dialErr
		}

		cfg := connection.Config{
			Client:      client,
			Signer:      ed25519box.New(),
			Box:         ed25519box.New(),
			RoutingKeys: settings.RoutingKeys,
			OwnLabel:    settings.OwnLabel,
			OwnDidDoc:   ownDidDoc,
		}
		core = findyagentconn.New(settings.HandleCacheName, cfg)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				glog.Warningf("connectionctl: closing snapshot store: %v", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&snapshotDBPath, "snapshot-db", "connectionctl-snapshots.db",
		"path to the bbolt snapshot store")

	rootCmd.AddCommand(
		createCmd(),
		createWithInviteCmd(),
		connectCmd(),
		updateStateCmd(),
		toStringCmd(),
		fromStringCmd(),
		releaseCmd(),
	)
}

// ownDidDoc renders an agent's identity as a minimal DidDoc passing
// diddoc.Validate, per spec.md §3.
func ownDidDoc(ai *agentinfo.AgentInfo) diddoc.DidDoc {
	return diddoc.NewMinimal(ai.PwDID, ai.PwVK, ai.RoutingKeys(), ai.AgencyEndpoint())
}

func createCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "create <source-id>",
		Short: "provision a fresh Connection in the Null state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := connection.RoleInviter
			if role == "invitee" {
				r = connection.RoleInvitee
			}
			h := core.Create(args[0], r)
			fmt.Printf("handle: %d\n", h)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "inviter", "inviter|invitee")
	return cmd
}

func createWithInviteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-with-invite <source-id> <invitation-json-file>",
		Short: "provision an Invitee Connection that has accepted an invitation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, readErr := os.ReadFile(args[1])
			if readErr != nil {
				return readErr
			}
			msg, decErr := message.Decode(raw)
			if decErr != nil {
				return decErr
			}
			inv, ok := msg.(*message.Invitation)
			if !ok {
				return fmt.Errorf("%s does not contain an invitation message", args[1])
			}
			h, err := core.CreateWithInvite(args[0], inv)
			if err != nil {
				return err
			}
			fmt.Printf("handle: %d\n", h)
			return nil
		},
	}
}

func connectCmd() *cobra.Command {
	var handle uint32
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "drive a Connection's connect() transition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return core.Connect(context.Background(), handle)
		},
	}
	cmd.Flags().Uint32Var(&handle, "handle", 0, "connection handle")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func updateStateCmd() *cobra.Command {
	var handle uint32
	cmd := &cobra.Command{
		Use:   "update-state",
		Short: "poll the agency and apply the next routable message, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := core.UpdateState(context.Background(), handle); err != nil {
				return err
			}
			info, err := core.ConnectionInfo(handle)
			if err != nil {
				return err
			}
			fmt.Printf("state: %d\n", info.State)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&handle, "handle", 0, "connection handle")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func toStringCmd() *cobra.Command {
	var handle uint32
	cmd := &cobra.Command{
		Use:   "to-string",
		Short: "serialize a Connection and save it under its source_id",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := core.ToString(handle)
			if err != nil {
				return err
			}
			sourceID, err := core.SourceID(handle)
			if err != nil {
				return err
			}
			if err := store.Save(sourceID, snapshot); err != nil {
				return err
			}
			fmt.Println(snapshot)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&handle, "handle", 0, "connection handle")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}

func fromStringCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "from-string <source-id>",
		Short: "rehydrate a Connection previously saved by to-string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, ok, err := store.Load(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no saved snapshot for source_id %q", args[0])
			}
			h, err := core.FromString(snapshot)
			if err != nil {
				return err
			}
			fmt.Printf("handle: %d\n", h)
			return nil
		},
	}
}

func releaseCmd() *cobra.Command {
	var handle uint32
	cmd := &cobra.Command{
		Use:   "release",
		Short: "drop a handle from the cache without touching the agency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return core.Release(handle)
		},
	}
	cmd.Flags().Uint32Var(&handle, "handle", 0, "connection handle")
	_ = cmd.MarkFlagRequired("handle")
	return cmd
}
