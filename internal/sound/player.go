package sound

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Player plays a local audio file and returns when playback ends.
type Player interface {
	Play(ctx context.Context, path string) error
}

// NopPlayer discards sounds.
type NopPlayer struct{}

// Play implements Player.
func (NopPlayer) Play(context.Context, string) error { return nil }

// CommandPlayer plays files through an external program such as paplay.
type CommandPlayer struct {
	Command string
	Args    []string
}

// DetectPlayer returns a CommandPlayer for the first known audio program on
// PATH, or a NopPlayer when none is installed.
func DetectPlayer(preferred string) Player {
	candidates := []string{"paplay", "aplay", "pw-play", "ffplay"}
	if runtime.GOOS == "darwin" {
		candidates = []string{"afplay"}
	}
	if p := strings.TrimSpace(preferred); p != "" {
		candidates = append([]string{p}, candidates...)
	}
	for _, name := range candidates {
		if _, err := exec.LookPath(name); err == nil {
			p := CommandPlayer{Command: name}
			if name == "ffplay" {
				p.Args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
			}
			return p
		}
	}
	return NopPlayer{}
}

// Play implements Player.
func (p CommandPlayer) Play(ctx context.Context, path string) error {
	args := append(append([]string(nil), p.Args...), path)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", p.Command, err, msg)
		}
		return fmt.Errorf("%s: %w", p.Command, err)
	}
	return nil
}
