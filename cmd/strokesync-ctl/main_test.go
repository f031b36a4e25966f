package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeDaemon accepts connections on a Unix socket, records each request
// line and answers with reply.
type fakeDaemon struct {
	socket string
	lines  chan string
}

func startFakeDaemon(t *testing.T, reply string) *fakeDaemon {
	t.Helper()
	dir, err := os.MkdirTemp("", "ssctl")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	d := &fakeDaemon{socket: filepath.Join(dir, "ctl.sock"), lines: make(chan string, 8)}
	ln, err := net.Listen("unix", d.socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			sc := bufio.NewScanner(conn)
			if sc.Scan() {
				d.lines <- sc.Text()
				conn.Write([]byte(reply + "\n"))
			}
			conn.Close()
		}
	}()
	return d
}

func run(t *testing.T, d *fakeDaemon, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--socket", d.socket}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decodeLine(t *testing.T, line string) (string, map[string]any) {
	t.Helper()
	var env struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return env.Type, env.Data
}

func TestCommandsEncodeEvents(t *testing.T) {
	d := startFakeDaemon(t, `{"status":"ok"}`)

	tests := []struct {
		args []string
		typ  string
		key  string
		want any
	}{
		{[]string{"time", "1500"}, "time_change", "ms", 1500.0},
		{[]string{"seek", "60000.5"}, "seek", "ms", 60000.5},
		{[]string{"pause"}, "pause_change", "paused", true},
		{[]string{"resume"}, "pause_change", "paused", false},
		{[]string{"load", "/v/a.twist.funscript", "--axis", "twist"}, "load_funscript", "axis", "twist"},
		{[]string{"video", "/v/a.mp4"}, "video_starting", "video_path", "/v/a.mp4"},
		{[]string{"shutdown"}, "shutdown", "", nil},
	}
	for _, tt := range tests {
		out, err := run(t, d, tt.args...)
		if err != nil {
			t.Fatalf("%v: %v (%s)", tt.args, err, out)
		}
		if strings.TrimSpace(out) != "ok" {
			t.Fatalf("%v: output %q, want ok", tt.args, out)
		}
		typ, data := decodeLine(t, <-d.lines)
		if typ != tt.typ {
			t.Fatalf("%v: type %q, want %q", tt.args, typ, tt.typ)
		}
		if tt.key == "" {
			if data != nil {
				t.Fatalf("%v: unexpected data %v", tt.args, data)
			}
			continue
		}
		if data[tt.key] != tt.want {
			t.Fatalf("%v: %s = %v, want %v", tt.args, tt.key, data[tt.key], tt.want)
		}
	}
}

func TestLimitPrintsResult(t *testing.T) {
	d := startFakeDaemon(t, `{"status":"ok","limits":{"min":0.1,"max":0.75,"speed":0.5}}`)

	out, err := run(t, d, "limit", "stroke", "--max-by", "-0.05")
	if err != nil {
		t.Fatalf("limit: %v", err)
	}
	if !strings.Contains(out, "stroke: min=0.100 max=0.750 speed=0.500") {
		t.Fatalf("output = %q", out)
	}

	_, data := decodeLine(t, <-d.lines)
	if data["axis"] != "stroke" || data["max_by"] != -0.05 {
		t.Fatalf("request = %v", data)
	}
	for _, absent := range []string{"min_by", "min_new", "max_new"} {
		if _, ok := data[absent]; ok {
			t.Fatalf("unset field %s sent: %v", absent, data)
		}
	}
}

func TestLimitRequiresAChange(t *testing.T) {
	d := startFakeDaemon(t, `{"status":"ok"}`)
	if _, err := run(t, d, "limit", "stroke"); err == nil {
		t.Fatalf("expected error without any bound flag")
	}
}

func TestDaemonErrorIsReturned(t *testing.T) {
	d := startFakeDaemon(t, `{"status":"error","error":"event queue full"}`)
	_, err := run(t, d, "pause")
	if err == nil || !strings.Contains(err.Error(), "event queue full") {
		t.Fatalf("err = %v, want daemon error", err)
	}
}

func TestBadMilliseconds(t *testing.T) {
	d := startFakeDaemon(t, `{"status":"ok"}`)
	if _, err := run(t, d, "time", "soon"); err == nil {
		t.Fatalf("expected parse error")
	}
}
