//go:build !windows

package preflight

import (
	"context"
	"runtime"
)

// Detect reports the build architecture. Elevation is not modelled off Windows.
func Detect(ctx context.Context) (Host, error) {
	if err := ctx.Err(); err != nil {
		return Host{}, err
	}
	return Host{Architecture: normalizeArch(runtime.GOARCH), Admin: true}, nil
}
