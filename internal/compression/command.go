package compression

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long a killed command may keep its pipes open.
const waitDelay = 200 * time.Millisecond

// CommandCodec runs an external compressor. The executable is invoked with
// its configured arguments followed by "compress" or "decompress"; text goes
// to stdin and the result is read from stdout.
type CommandCodec struct {
	path string
	args []string
}

// NewCommandCodec creates a codec for the executable at path.
func NewCommandCodec(path string, args []string) (*CommandCodec, error) {
	if path == "" {
		return nil, errors.New("compression command cannot be empty")
	}

	return &CommandCodec{
		path: path,
		args: append([]string(nil), args...),
	}, nil
}

// Name returns the codec identifier.
func (c *CommandCodec) Name() string {
	return "command"
}

// Encode runs the command in compress mode.
func (c *CommandCodec) Encode(ctx context.Context, text string) (string, error) {
	return c.exec(ctx, opCompress, text)
}

// Decode runs the command in decompress mode.
func (c *CommandCodec) Decode(ctx context.Context, text string) (string, error) {
	return c.exec(ctx, opDecompress, text)
}

func (c *CommandCodec) exec(ctx context.Context, op, text string) (string, error) {
	args := make([]string, 0, len(c.args)+1)
	args = append(args, c.args...)
	args = append(args, op)

	cmd := exec.CommandContext(ctx, c.path, args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("compression command %s: %w", op, ctxErr)
		}
		return "", fmt.Errorf("compression command %s failed: %w: %s", op, err, strings.TrimSpace(stderr.String()))
	}

	// Most tools terminate their output with a newline.
	return strings.TrimSuffix(stdout.String(), "\n"), nil
}
