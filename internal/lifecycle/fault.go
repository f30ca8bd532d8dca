// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lifecycle

import (
	"context"
	"log/slog"

	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/pkg/errutil"
)

// FaultPolicy decides what happens after a command handler fails.
type FaultPolicy func(ctx context.Context, registry *cog.Registry, res cog.Result)

// DisableOnFault logs the failure and disables the owning cog. The cog stays
// listed and its commands stay callable; reloading its module re-enables it.
func DisableOnFault(ctx context.Context, registry *cog.Registry, res cog.Result) {
	errutil.LogErrorContext(ctx, nil, "command handler failed; disabling cog", res.Err,
		"command", res.Command,
		"cog", res.Cog)
	if err := registry.DisableCog(res.Cog); err != nil {
		errutil.LogWarnContext(ctx, nil, "disable cog after fault", err, "cog", res.Cog)
		return
	}
	cog.RecordCogDisabled(res.Cog)
}

// LogOnFault only logs the failure.
func LogOnFault(ctx context.Context, _ *cog.Registry, res cog.Result) {
	slog.WarnContext(ctx, "command handler failed",
		"command", res.Command,
		"cog", res.Cog,
		"error", res.Err)
}
