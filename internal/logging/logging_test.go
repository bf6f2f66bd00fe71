package logging

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestNew_TextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: "warn", Format: "text", Output: &buf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "channel", "a")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "channel=a") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("step done", "step", "site")
	if !strings.Contains(buf.String(), `"step":"site"`) {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestParseLevel_Unknown(t *testing.T) {
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogstashWriter_Delivers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
	}()

	w, err := NewLogstashWriter(ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if _, err := w.Write([]byte(`{"msg":"hello"}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case line := <-received:
		if line != "{\"msg\":\"hello\"}\n" {
			t.Errorf("line = %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("record not delivered")
	}
}

func TestLogstashWriter_DropsWhileDown(t *testing.T) {
	dials := 0
	w, _ := NewLogstashWriter("logstash:5000", WithRetryInterval(time.Hour))
	w.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		dials++
		return nil, errors.New("connection refused")
	}

	for i := 0; i < 3; i++ {
		n, err := w.Write([]byte("record"))
		if err != nil || n != len("record") {
			t.Fatalf("Write = %d, %v", n, err)
		}
	}
	if dials != 1 {
		t.Errorf("expected a single dial during cool-down, got %d", dials)
	}
	if w.Dropped() != 3 {
		t.Errorf("Dropped = %d, want 3", w.Dropped())
	}

	w.Close()
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected error after Close")
	}
}

func TestNewLogstashWriter_EmptyAddress(t *testing.T) {
	if _, err := NewLogstashWriter("  "); err == nil {
		t.Error("expected error")
	}
}
