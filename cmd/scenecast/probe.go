package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/luciancaetano/scenecast"
	"github.com/luciancaetano/scenecast/internal/protocol"
	"github.com/luciancaetano/scenecast/internal/transport"
)

type probeOptions struct {
	addr    string
	url     string
	room    string
	output  string
	timeout time.Duration
}

// probeReport is what a probe learned from the server.
type probeReport struct {
	Rooms   []string       `yaml:"rooms"`
	Joined  string         `yaml:"joined,omitempty"`
	Replay  map[string]int `yaml:"replay,omitempty"`
	Clients []probeClient  `yaml:"clients"`
}

type probeClient struct {
	ID   string `yaml:"id"`
	Room string `yaml:"room,omitempty"`
}

func probeCmd() *cobra.Command {
	var opts probeOptions

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect to a broadcaster and report its rooms and clients",
		Long: `Connect to a broadcaster, optionally join a room, and print
what the server reports.

Examples:
  scenecast probe --addr 127.0.0.1:12800
  scenecast probe --url ws://127.0.0.1:12801/ws --room scene
  scenecast probe --room scene --output yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "text" && opts.output != "yaml" {
				return fmt.Errorf("unknown output format %q", opts.output)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			ch, err := dialProbe(ctx, opts)
			if err != nil {
				return err
			}
			report, err := runProbe(ctx, ch, opts.room)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), report, opts.output)
		},
	}

	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "127.0.0.1:12800", "Broadcaster TCP address")
	cmd.Flags().StringVarP(&opts.url, "url", "u", "", "Broadcaster WebSocket URL (overrides --addr)")
	cmd.Flags().StringVarP(&opts.room, "room", "r", "", "Room to join before listing")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format (text or yaml)")
	cmd.Flags().DurationVarP(&opts.timeout, "timeout", "t", 10*time.Second, "Overall timeout")

	return cmd
}

func dialProbe(ctx context.Context, opts probeOptions) (transport.Channel, error) {
	if opts.url != "" {
		ch, err := transport.DialWS(ctx, opts.url)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", opts.url, err)
		}
		return ch, nil
	}
	ch, err := transport.Dial(ctx, opts.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	return ch, nil
}

// runProbe joins room when it is set, then collects the room list, the
// stored content received on join and the client directory.
func runProbe(ctx context.Context, ch transport.Channel, room string) (*probeReport, error) {
	policy := transport.DefaultPolicy()
	policy.PollTimeout = 50 * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		policy.ReadTimeout = time.Until(deadline)
		policy.SendTimeout = time.Until(deadline)
	}
	alloc := protocol.NewIDAllocator(protocol.FirstCommandID)
	ep := transport.NewEndpoint(ch, transport.EndpointConfig{
		IDs:    alloc,
		Policy: policy,
	})
	defer ep.Close()

	report := &probeReport{Joined: room, Replay: make(map[string]int)}
	if room != "" {
		if err := ep.Send(alloc.NewCommand(scenecast.JoinRoom, protocol.EncodeString(room), 0)); err != nil {
			return nil, err
		}
	}

	reply, err := request(ctx, ep, alloc, scenecast.ListRooms, report.Replay)
	if err != nil {
		return nil, err
	}
	if report.Rooms, _, err = protocol.DecodeStringArray(reply.Data, 0); err != nil {
		return nil, fmt.Errorf("room list: %w", err)
	}

	reply, err = request(ctx, ep, alloc, scenecast.ListClients, report.Replay)
	if err != nil {
		return nil, err
	}
	ids, off, err := protocol.DecodeStringArray(reply.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("client list: %w", err)
	}
	rooms, _, err := protocol.DecodeStringArray(reply.Data, off)
	if err != nil {
		return nil, fmt.Errorf("client list: %w", err)
	}
	if len(rooms) != len(ids) {
		return nil, fmt.Errorf("client list: %d ids but %d rooms", len(ids), len(rooms))
	}
	for i, id := range ids {
		report.Clients = append(report.Clients, probeClient{ID: id, Room: rooms[i]})
	}
	return report, nil
}

// request sends a command of type t and waits for the reply of the same
// type, counting everything received before it by type name.
func request(ctx context.Context, ep *transport.Endpoint, alloc *protocol.IDAllocator, t protocol.MessageType, counts map[string]int) (*protocol.Command, error) {
	if err := ep.Send(alloc.NewCommand(t, nil, 0)); err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("waiting for %v: %w", t, err)
		}
		cmd, err := ep.TryReceive()
		if err != nil {
			return nil, err
		}
		if cmd == nil {
			continue
		}
		if cmd.Type == t {
			return cmd, nil
		}
		counts[cmd.Type.String()]++
	}
}

func writeReport(out io.Writer, report *probeReport, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(out, "rooms (%d): %s\n", len(report.Rooms), strings.Join(report.Rooms, ", "))
	if report.Joined != "" {
		fmt.Fprintf(out, "joined %q: %s\n", report.Joined, summarize(report.Replay))
	}
	fmt.Fprintf(out, "clients (%d):\n", len(report.Clients))
	for _, c := range report.Clients {
		r := c.Room
		if r == "" {
			r = "-"
		}
		fmt.Fprintf(out, "  %s  %s\n", c.ID, r)
	}
	return nil
}

func summarize(counts map[string]int) string {
	if len(counts) == 0 {
		return "no commands"
	}
	parts := make([]string, 0, len(counts))
	for name, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", name, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
