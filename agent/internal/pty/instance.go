// Package pty manages the Agent's PTY-hosted child processes: spawn, the
// output read loop, input writes, resize, and close semantics, per spec
// §4.2.
package pty

import (
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// readChunkSize bounds a single PTY read per spec §4.2 ("reasonably sized
// reads (≤ 64 KiB)").
const readChunkSize = 64 * 1024

// closeGrace is how long Close waits after SIGTERM before escalating to
// SIGKILL, per spec §4.2/§9 (open question resolved as a 2-second grace).
const closeGrace = 2 * time.Second

// OutputFunc receives a chunk of PTY output as it is read.
type OutputFunc func(data []byte)

// ExitFunc is invoked exactly once when the child process exits, whether
// by natural EOF or via Close.
type ExitFunc func()

// Instance is one PTY-hosted child process.
type Instance struct {
	ID  string
	Cwd string

	mu     sync.Mutex
	cmd    *exec.Cmd
	master *os.File
	closed bool
}

// Spawn starts shell in cwd under a new PTY, and launches the background
// read loop that delivers output to onOutput. onExit fires once when the
// child process terminates for any reason.
func Spawn(id, cwd, shell string, onOutput OutputFunc, onExit ExitFunc) (*Instance, error) {
	cmd := exec.Command(shell)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}

	inst := &Instance{ID: id, Cwd: cwd, cmd: cmd, master: master}
	go inst.readLoop(onOutput, onExit)
	return inst, nil
}

func (i *Instance) readLoop(onOutput OutputFunc, onExit ExitFunc) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := i.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if err != nil {
			break
		}
	}

	i.cmd.Wait()

	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()

	onExit()
}

// Write sends input bytes to the PTY master (pty-input frames).
func (i *Instance) Write(data []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	_, err := i.master.Write(data)
	return err
}

// Resize applies new terminal dimensions.
func (i *Instance) Resize(cols, rows uint16) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	return pty.Setsize(i.master, &pty.Winsize{Cols: cols, Rows: rows})
}

// Close sends SIGTERM to the child's process group, waits closeGrace for
// exit, then escalates to SIGKILL. Safe to call multiple times. The
// read loop's onExit callback still fires when the child actually exits.
func (i *Instance) Close() {
	i.mu.Lock()
	pid := 0
	if i.cmd.Process != nil {
		pid = i.cmd.Process.Pid
	}
	i.mu.Unlock()
	if pid == 0 {
		return
	}

	pgid, err := syscall.Getpgid(pid)
	target := pid
	if err == nil && pgid > 0 {
		target = -pgid
	}

	syscall.Kill(target, syscall.SIGTERM)

	deadline := time.Now().Add(closeGrace)
	for time.Now().Before(deadline) {
		i.mu.Lock()
		done := i.closed
		i.mu.Unlock()
		if done {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}

	i.mu.Lock()
	done := i.closed
	i.mu.Unlock()
	if !done {
		syscall.Kill(target, syscall.SIGKILL)
	}
}
