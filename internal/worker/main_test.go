package worker

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

const envHelper = "HELLOJOE_TEST_HELPER"

// TestMain doubles as the worker program for shared-socket tests: the
// spawner re-executes the test binary with envHelper set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(envHelper); mode != "" {
		os.Exit(runHelper(mode))
	}

	os.Exit(m.Run())
}

func runHelper(mode string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	child, err := Connect(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		return 10
	}
	defer child.Close()

	ln, err := child.Listener()
	if err != nil {
		fmt.Fprintln(os.Stderr, "listener:", err)
		return 11
	}

	if err := child.Online(ctx); err != nil {
		return 12
	}

	if err := child.Listening(ctx, ln.Addr()); err != nil {
		return 13
	}

	switch mode {
	case "serve":
		conn, err := ln.Accept()
		if err != nil {
			return 14
		}
		fmt.Fprintf(conn, "%d\n", child.ID())
		conn.Close()

		if err := child.Disconnect(ctx); err != nil {
			return 15
		}
		return 0

	case "disconnect":
		if err := child.Disconnect(ctx); err != nil {
			return 15
		}
		return 0

	case "crash":
		return 2

	case "block":
		<-ctx.Done()
		return 0
	}

	return 1
}
