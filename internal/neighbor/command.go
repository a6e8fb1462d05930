package neighbor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"flexfinder/internal/models"
)

type parseFunc func(io.Reader) ([]models.Neighbor, error)

// commandTable runs a utility that dumps the ARP cache and parses its output.
type commandTable struct {
	name  string
	args  []string
	parse parseFunc
}

func (c commandTable) Entries(ctx context.Context) ([]models.Neighbor, error) {
	cmd := exec.CommandContext(ctx, c.name, c.args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w (%s)", c.name, err, bytes.TrimSpace(stderr.Bytes()))
	}

	return c.parse(bytes.NewReader(out))
}

// fileTable parses a kernel-provided table file.
type fileTable struct {
	path  string
	parse parseFunc
}

func (f fileTable) Entries(ctx context.Context) ([]models.Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	defer fh.Close()

	return f.parse(fh)
}
