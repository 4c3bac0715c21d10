package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/andresmejia3/tiler/internal/types"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (worker logs)
// so a crashed worker still leaves its last words behind.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	return wrap(exec.Command(name, args...))
}

// NewSafeCommandContext is NewSafeCommand with a context that kills the process
// once it is done.
func NewSafeCommandContext(ctx context.Context, name string, args ...string) *SafeCommand {
	return wrap(exec.CommandContext(ctx, name, args...))
}

func wrap(cmd *exec.Cmd) *SafeCommand {
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps worker logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 TILER ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nWORKER LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// --- 2. Run Identity ---

// GenerateRunID creates a deterministic hash for a run based on the name, size
// and modification time of every listed input plus the job configuration.
func GenerateRunID(dir string, names []string, cfg types.JobConfig) (string, error) {
	h := sha256.New()
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s-%d-%d\n", name, info.Size(), info.ModTime().UnixNano())
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	h.Write(cfgJSON)
	return hex.EncodeToString(h.Sum(nil)), nil
}
