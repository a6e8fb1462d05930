//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !windows

package neighbor

import (
	"context"

	"flexfinder/internal/models"
)

type unsupported struct{}

func (unsupported) Entries(context.Context) ([]models.Neighbor, error) {
	return nil, errUnsupportedPlatform
}

// System returns the host's neighbor table.
func System() Table {
	return unsupported{}
}
