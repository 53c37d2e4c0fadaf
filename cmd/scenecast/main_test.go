package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/luciancaetano/scenecast/internal/broadcaster"
	"github.com/luciancaetano/scenecast/internal/protocol"
	"github.com/luciancaetano/scenecast/internal/transport"
)

func startBroadcaster(t *testing.T) *broadcaster.Server {
	t.Helper()
	s := broadcaster.New(&broadcaster.ServerConfig{
		TCPAddr:         "127.0.0.1:0",
		HTTPAddr:        "127.0.0.1:0",
		RateLimitConfig: broadcaster.NoRateLimit(),
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s
}

// TestProbe tests the probe report over both transports
func TestProbe(t *testing.T) {
	t.Parallel()
	s := startBroadcaster(t)

	tests := []struct {
		name string
		opts func() probeOptions
		room string
		want []string
	}{
		{
			name: "tcp without room",
			opts: func() probeOptions { return probeOptions{addr: s.TCPAddr()} },
			want: []string{"rooms (0)", "clients (1)"},
		},
		{
			name: "websocket joining a room",
			opts: func() probeOptions { return probeOptions{url: "ws://" + s.HTTPAddr() + "/ws"} },
			room: "probe-room",
			want: []string{"rooms (1): probe-room", `joined "probe-room": CONTENT=1`, "probe-room\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			ch, err := dialProbe(ctx, tt.opts())
			if err != nil {
				t.Fatalf("dialProbe() error = %v", err)
			}
			report, err := runProbe(ctx, ch, tt.room)
			if err != nil {
				t.Fatalf("runProbe() error = %v", err)
			}
			var out bytes.Buffer
			if err := writeReport(&out, report, "text"); err != nil {
				t.Fatalf("writeReport() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

// TestProbeReplay tests that the probe reports stored room content
func TestProbeReplay(t *testing.T) {
	t.Parallel()
	s := startBroadcaster(t)

	ch, err := transport.Dial(context.Background(), s.TCPAddr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	editor := transport.NewEndpoint(ch, transport.EndpointConfig{})
	defer editor.Close()
	for _, cmd := range []*protocol.Command{
		{Type: protocol.JoinRoom, ID: 1, Data: protocol.EncodeString("scene")},
		{Type: protocol.Transform, ID: 2, Data: protocol.EncodeString("cube")},
		{Type: protocol.Transform, ID: 3, Data: protocol.EncodeString("cone")},
		{Type: protocol.Light, ID: 4, Data: protocol.EncodeString("sun")},
	} {
		if err := editor.Send(cmd); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(s.Rooms().Content("scene")) < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	probe, err := dialProbe(ctx, probeOptions{addr: s.TCPAddr()})
	if err != nil {
		t.Fatalf("dialProbe() error = %v", err)
	}
	report, err := runProbe(ctx, probe, "scene")
	if err != nil {
		t.Fatalf("runProbe() error = %v", err)
	}

	var out bytes.Buffer
	if err := writeReport(&out, report, "text"); err != nil {
		t.Fatalf("writeReport() error = %v", err)
	}
	if want := `joined "scene": LIGHT=1 TRANSFORM=2`; !strings.Contains(out.String(), want) {
		t.Errorf("output missing %q:\n%s", want, out.String())
	}

	out.Reset()
	if err := writeReport(&out, report, "yaml"); err != nil {
		t.Fatalf("writeReport(yaml) error = %v", err)
	}
	var decoded probeReport
	if err := yaml.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v\n%s", err, out.String())
	}
	if decoded.Joined != "scene" || decoded.Replay["TRANSFORM"] != 2 || len(decoded.Clients) != 2 {
		t.Errorf("decoded report = %+v", decoded)
	}
}

// TestReportCommandsCarryAllocatedIDs tests that every command sent while
// building a report carries an id from the allocator, never 0
func TestReportCommandsCarryAllocatedIDs(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	// Stands in for a broadcaster: ids are recorded verbatim, without an allocator.
	seen := make(chan []uint32, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			seen <- nil
			return
		}
		ep := transport.NewEndpoint(transport.NewNetChannel(conn), transport.EndpointConfig{
			Policy: transport.Policy{PollTimeout: 10 * time.Millisecond, ReadTimeout: 5 * time.Second, SendTimeout: 5 * time.Second},
		})
		defer ep.Close()

		var ids []uint32
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			cmd, err := ep.TryReceive()
			if err != nil {
				break
			}
			if cmd == nil {
				continue
			}
			ids = append(ids, cmd.ID)

			switch cmd.Type {
			case protocol.ListRooms:
				_ = ep.Send(&protocol.Command{Type: protocol.ListRooms, ID: 1, Data: protocol.EncodeStringArray([]string{"scene"})})
			case protocol.ListClients:
				enc := protocol.NewEncoder()
				enc.WriteBytes(protocol.EncodeStringArray([]string{"c1"}))
				enc.WriteBytes(protocol.EncodeStringArray([]string{"scene"}))
				_ = ep.Send(&protocol.Command{Type: protocol.ListClients, ID: 2, Data: enc.Bytes()})
				seen <- ids
				return
			}
		}
		seen <- ids
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := transport.Dial(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if _, err := runProbe(ctx, ch, "scene"); err != nil {
		t.Fatalf("runProbe() error = %v", err)
	}

	ids := <-seen
	if len(ids) != 3 {
		t.Fatalf("server saw %d commands (%v), want 3", len(ids), ids)
	}
	for i, id := range ids {
		if id < protocol.FirstCommandID {
			t.Errorf("command %d id = %d, want >= %d", i, id, protocol.FirstCommandID)
		}
		if i > 0 && id <= ids[i-1] {
			t.Errorf("command %d id = %d, not above previous %d", i, id, ids[i-1])
		}
	}
}

// TestServeFlagsOverrideConfig tests that set flags win over the config file
func TestServeFlagsOverrideConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "scenecast.toml")
	data := "[server]\ntcp_address = \"127.0.0.1:7000\"\nhttp_address = \"127.0.0.1:7001\"\n[logging]\nlevel = \"warn\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := serveCmd()
	if err := cmd.Flags().Parse([]string{"--config", path, "--http", "", "--log-level", "debug"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	opts := serveOptions{configPath: path, httpAddr: "", logLevel: "debug"}

	cfg, err := loadServeConfig(cmd, opts)
	if err != nil {
		t.Fatalf("loadServeConfig() error = %v", err)
	}
	if cfg.Server.TCPAddress != "127.0.0.1:7000" {
		t.Errorf("TCPAddress = %q, want file value", cfg.Server.TCPAddress)
	}
	if cfg.Server.HTTPAddress != "" {
		t.Errorf("HTTPAddress = %q, want flag override", cfg.Server.HTTPAddress)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

// TestVersionCommand tests the version output
func TestVersionCommand(t *testing.T) {
	t.Parallel()

	cmd := versionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--short"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != version {
		t.Errorf("version = %q, want %q", got, version)
	}
}
