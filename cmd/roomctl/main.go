package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skygrid/roomdir-server/internal/client"
	"github.com/skygrid/roomdir-server/internal/log"
	"github.com/skygrid/roomdir-server/internal/proto"
)

var serverURL string

func main() {
	root := &cobra.Command{
		Use:           "roomctl",
		Short:         "Command-line client for the room directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "ws://localhost:2567/ws", "directory WebSocket URL")

	root.AddCommand(newListCmd(), newWatchCmd(), newCreateCmd(), newJoinCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connect(ctx context.Context, opts client.Options) (*client.Session, error) {
	logger := log.New("warn", "console")
	return client.Connect(ctx, serverURL, opts, logger)
}

func printRoom(room proto.Room) {
	lock := " "
	if room.HasPassword {
		lock = "*"
	}
	fmt.Printf("%s  %-36s  %-8s  %-24s  %d clients\n", lock, room.ID, room.Type, room.Name, room.ClientCount)
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the current room listing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			sess, err := connect(ctx, client.Options{})
			if err != nil {
				return err
			}
			defer sess.Close()

			for _, room := range sess.Rooms() {
				printRoom(room)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream directory changes until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := connect(ctx, client.Options{
				OnDelta: func(delta proto.DeltaData) {
					fmt.Printf("%6d  %-12s  ", delta.Seq, delta.Kind)
					printRoom(delta.Room)
				},
				OnResubscribed: func() {
					fmt.Println("-- resubscribed, listing refreshed --")
				},
			})
			if err != nil {
				return err
			}
			defer sess.Close()

			for _, room := range sess.Rooms() {
				printRoom(room)
			}
			<-ctx.Done()
			return nil
		},
	}
}

func newCreateCmd() *cobra.Command {
	var (
		description string
		password    string
		hasPassword bool
		maxClients  int
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a custom room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			sess, err := connect(ctx, client.Options{})
			if err != nil {
				return err
			}
			defer sess.Close()

			var secret *string
			if hasPassword || password != "" {
				secret = &password
			}
			room, err := sess.CreateRoom(ctx, args[0], description, secret, maxClients)
			if err != nil {
				return err
			}
			fmt.Printf("created room %s\n", room.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "room description")
	cmd.Flags().StringVar(&password, "password", "", "room password")
	cmd.Flags().BoolVar(&hasPassword, "with-password", false, "protect the room even with an empty password")
	cmd.Flags().IntVar(&maxClients, "max-clients", 0, "client limit, 0 for unlimited")
	return cmd
}

func newJoinCmd() *cobra.Command {
	var (
		password    string
		hasPassword bool
		public      bool
	)

	cmd := &cobra.Command{
		Use:   "join [room-id]",
		Short: "Negotiate entry into a room and print the session credentials",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			sess, err := connect(ctx, client.Options{})
			if err != nil {
				return err
			}
			defer sess.Close()

			var secret *string
			if hasPassword || password != "" {
				secret = &password
			}

			var granted *proto.GrantedData
			switch {
			case public:
				granted, err = sess.JoinPublic(ctx)
			case len(args) == 1:
				granted, err = sess.JoinByID(ctx, args[0], secret)
			default:
				return fmt.Errorf("either a room id or --public is required")
			}
			if err != nil {
				return err
			}

			fmt.Printf("joined %s (%s)\n", granted.Room.Name, granted.Room.ID)
			fmt.Printf("sim url:  %s\n", granted.Session.URL)
			fmt.Printf("identity: %s\n", granted.Session.Identity)
			fmt.Printf("token:    %s\n", granted.Session.Token)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "room password")
	cmd.Flags().BoolVar(&hasPassword, "with-password", false, "send the password even when empty")
	cmd.Flags().BoolVar(&public, "public", false, "join the always-open public room")
	return cmd
}
