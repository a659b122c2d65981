package role

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/model"
)

// Outcome describes what ReconcileStoredRole did.
type Outcome string

const (
	// OutcomeNoUsername: the profile has no GitHub identity, nothing to reconcile.
	OutcomeNoUsername Outcome = "no_username"
	// OutcomeUnchanged: stored and resolved roles already agree.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeDeferred: the resolution was degraded and is not written.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeAdminKept: stored admin is never lowered.
	OutcomeAdminKept Outcome = "admin_kept"
	// OutcomeUpdated: the stored role was corrected and re-read.
	OutcomeUpdated Outcome = "updated"
	// OutcomeConflict: another writer changed the role first; the fresh
	// profile was re-read and accepted.
	OutcomeConflict Outcome = "conflict"
	// OutcomeWriteFailed: the write failed and the stale profile stands.
	OutcomeWriteFailed Outcome = "write_failed"
)

// ReconcileStoredRole brings stored.Role in line with resolved.Role.
//
// The write is a compare-and-swap on the role that was read, followed by a
// re-read, so two racing rehydrations can never interleave a stale write.
// Store failures are logged and the stale profile returned; the next
// rehydration tries again. The only error is a nil profile.
func (r *Resolver) ReconcileStoredRole(ctx context.Context, stored *model.Profile, resolved Resolution) (*model.Profile, Outcome, error) {
	if stored == nil {
		return nil, "", apperror.ValidationFailed("profile", "stored profile is required")
	}

	outcome := r.decide(stored, resolved)
	if outcome != "" {
		r.metrics.RecordReconciliation(string(outcome))
		return stored, outcome, nil
	}

	fresh, outcome := r.swap(ctx, stored, resolved.Role)
	r.metrics.RecordReconciliation(string(outcome))
	return fresh, outcome, nil
}

// decide returns a non-empty outcome when no write is warranted.
func (r *Resolver) decide(stored *model.Profile, resolved Resolution) Outcome {
	switch {
	case !stored.HasGitHubUsername():
		return OutcomeNoUsername
	case stored.Role == resolved.Role:
		return OutcomeUnchanged
	case resolved.Degraded:
		return OutcomeDeferred
	case stored.Role == model.RoleAdmin:
		return OutcomeAdminKept
	}
	return ""
}

func (r *Resolver) swap(ctx context.Context, stored *model.Profile, next model.Role) (*model.Profile, Outcome) {
	log := r.logger.With(
		slog.String("uid", stored.UID),
		slog.String("from", string(stored.Role)),
		slog.String("to", string(next)),
	)

	err := r.profiles.SwapRole(ctx, stored.UID, stored.Role, next)
	if err != nil && !errors.Is(err, apperror.ErrConflict) {
		log.Error("role reconciliation write failed", slog.String("error", err.Error()))
		return stored, OutcomeWriteFailed
	}
	swapped := err == nil

	outcome := OutcomeUpdated
	if !swapped {
		outcome = OutcomeConflict
	}

	fresh, err := r.profiles.GetProfile(ctx, stored.UID)
	if err != nil {
		log.Warn("re-reading profile after reconciliation failed", slog.String("error", err.Error()))
		if !swapped {
			return stored, OutcomeConflict
		}
		patched := *stored
		patched.Role = next
		return &patched, outcome
	}

	if swapped {
		log.Info("stored role reconciled")
	} else {
		log.Info("stored role changed concurrently, keeping fresh value",
			slog.String("fresh", string(fresh.Role)),
		)
	}
	return fresh, outcome
}
