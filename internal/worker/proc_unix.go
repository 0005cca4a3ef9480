//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris

package worker

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func initCmd(cmd *exec.Cmd) {
	// run every worker in its own process group, so that
	// signals reach the whole tree the worker may spawn
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func sendSignal(pid int, signal unix.Signal) error {
	if pgid, err := unix.Getpgid(pid); err == nil && pgid == pid {
		// Negative pid sends signal to all in process group
		return unix.Kill(-pgid, signal)
	}

	return unix.Kill(pid, signal)
}

// controlPair creates a connected pair of unix stream sockets. The
// first end is wrapped as a net.Conn for the supervising side, the
// second end is returned as a file to be inherited by the child.
func controlPair() (net.Conn, *os.File, error) {
	// hold the fork lock so no sibling exec inherits the pair
	// before close-on-exec is set
	syscall.ForkLock.RLock()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err == nil {
		// exec clears the flag on the descriptors passed as extra files
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	syscall.ForkLock.RUnlock()

	if err != nil {
		return nil, nil, fmt.Errorf("socketpair: %w", err)
	}

	parent := os.NewFile(uintptr(fds[0]), "control-parent")
	child := os.NewFile(uintptr(fds[1]), "control-child")

	// net.FileConn dups the descriptor, the file can be closed afterwards
	conn, err := net.FileConn(parent)
	parent.Close()
	if err != nil {
		child.Close()
		return nil, nil, fmt.Errorf("control connection: %w", err)
	}

	return conn, child, nil
}
