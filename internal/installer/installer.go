// Package installer drives the engine swap as an explicit, ordered pipeline.
//
// One Installer is built per process with New and reused for every request.
// Each call to Run executes the stages in a fixed order:
//
//  1. Boot: register the new engine with the component registry.
//  2. EnvironmentReady: rewrite legacy records in the descriptor.
//  3. AdminInit: verify the rewrite and, once it landed, turn off the legacy
//     engine and the installer itself.
//
// AdminInit only runs after the migrator has had a chance to run, either
// earlier in the same Run or in a previous one. Every stage is idempotent,
// so repeated runs (page loads, watch ticks) converge on the Deactivated state.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/maithemewp/mai-engine-installer/internal/descriptor"
	"github.com/maithemewp/mai-engine-installer/internal/lock"
	"github.com/maithemewp/mai-engine-installer/internal/migrate"
	"github.com/maithemewp/mai-engine-installer/internal/registry"
)

// Component ids of the plugins involved in the swap.
const (
	LegacyComponentID = "mai-pro-engine/mai-pro-engine.php"
	SelfComponentID   = "mai-engine-installer/mai-engine-installer.php"
)

// metaMigratorRan is set once the migrator has run at least once.
const metaMigratorRan = "migrator.last_run"

// Notice is shown to administrators while the installer is still active.
const Notice = "Please refresh to complete the Mai Theme Engine installation. " +
	"If Mai Theme Engine is activated, please deactivate and delete Mai Theme Engine Installer."

// Registry is the component registry the pipeline talks to.
type Registry interface {
	Register(ctx context.Context, c registry.Component) error
	IsActive(ctx context.Context, id string) (bool, error)
	Deactivate(ctx context.Context, id string) error
	RecordTransition(ctx context.Context, from, to, detail string) error
	LastTransition(ctx context.Context) (*registry.Transition, error)
	SetMeta(ctx context.Context, key, value string) error
	GetMeta(ctx context.Context, key string) (string, bool, error)
}

// Authorizer decides whether the current caller may change component state.
type Authorizer interface {
	CanManageComponents(ctx context.Context) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context) bool

// CanManageComponents calls f.
func (f AuthorizerFunc) CanManageComponents(ctx context.Context) bool {
	return f(ctx)
}

// AllowAll grants every request.
func AllowAll() Authorizer {
	return AuthorizerFunc(func(context.Context) bool { return true })
}

// DenyAll refuses every request.
func DenyAll() Authorizer {
	return AuthorizerFunc(func(context.Context) bool { return false })
}

// ConfirmFunc is asked before each component is deactivated. Returning false
// keeps the component active for this run.
type ConfirmFunc func(ctx context.Context, componentID string) bool

// Options configures an Installer.
type Options struct {
	// Migration configures the descriptor rewrite.
	Migration migrate.Options

	// LegacyComponent is turned off once the descriptor is migrated.
	LegacyComponent string

	// SelfComponent is the installer's own id, turned off with the legacy engine.
	SelfComponent string

	// Registry is required.
	Registry Registry

	// Authorizer gates deactivation. Nil allows everything.
	Authorizer Authorizer

	// Confirm is optional.
	Confirm ConfirmFunc

	Logger *log.Logger
}

// Installer holds the per-process configuration. It keeps no per-request
// state and is safe for concurrent use.
type Installer struct {
	opts     Options
	migrator *migrate.Migrator
	verifier *migrate.Verifier
}

// New validates opts and creates an Installer.
func New(opts Options) (*Installer, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", migrate.ErrInvalidOptions)
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Authorizer == nil {
		opts.Authorizer = AllowAll()
	}
	if opts.Migration.Logger == nil {
		opts.Migration.Logger = opts.Logger
	}
	if opts.Migration.Journal == nil {
		opts.Migration.Journal = opts.Registry
	}
	if opts.Migration.Locker == nil {
		opts.Migration.Locker = lock.NewLocker()
	}

	m, err := migrate.NewMigrator(opts.Migration)
	if err != nil {
		return nil, err
	}

	return &Installer{
		opts:     opts,
		migrator: m,
		verifier: migrate.NewVerifier(opts.Migration.Path, opts.Migration.Replacement.URI),
	}, nil
}

// Migrator returns the record migrator the pipeline uses.
func (i *Installer) Migrator() *migrate.Migrator {
	return i.migrator
}

// Verifier returns the migration verifier the pipeline uses.
func (i *Installer) Verifier() *migrate.Verifier {
	return i.verifier
}

// Replacement returns the record the legacy engine is swapped for.
func (i *Installer) Replacement() descriptor.Record {
	return i.opts.Migration.Replacement
}

// Inspect reports the current migration state.
func (i *Installer) Inspect(ctx context.Context) (migrate.Snapshot, error) {
	return migrate.Inspect(ctx, i.opts.Migration.Path, i.opts.Migration.LegacyURIs,
		i.opts.Migration.Replacement.URI, i.opts.Registry, i.opts.LegacyComponent)
}

// Request describes one trigger of the pipeline.
type Request struct {
	// Admin is false for front-end requests, which do nothing.
	Admin bool

	// SkipMigrate runs AdminInit without rewriting the descriptor first.
	SkipMigrate bool
}

// Stage identifies a pipeline step.
type Stage int

const (
	StageBoot Stage = iota
	StageEnvironmentReady
	StageAdminInit
)

// String returns a human-readable representation of the stage.
func (s Stage) String() string {
	switch s {
	case StageBoot:
		return "boot"
	case StageEnvironmentReady:
		return "environment-ready"
	case StageAdminInit:
		return "admin-init"
	default:
		return "unknown"
	}
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage Stage
	Ran   bool
	// Skipped explains why a stage did not run or did nothing.
	Skipped string
	Err     error
}

// Result is the outcome of a Run.
type Result struct {
	Stages []StageResult

	// EngineRunning is set once the new engine was registered in this run.
	EngineRunning bool

	Migration *migrate.Result

	// Migrated is the verifier's answer, when AdminInit got that far.
	Migrated bool

	// Deactivated lists components turned off in this run.
	Deactivated []string

	// Notice is non-empty while the installer remains active.
	Notice string
}

// Stage returns the result for s, if it was recorded.
func (r *Result) Stage(s Stage) (StageResult, bool) {
	for _, sr := range r.Stages {
		if sr.Stage == s {
			return sr, true
		}
	}
	return StageResult{}, false
}

// Err returns the first stage error, if any.
func (r *Result) Err() error {
	for _, sr := range r.Stages {
		if sr.Err != nil {
			return sr.Err
		}
	}
	return nil
}

// Run executes the pipeline once.
//
// Stage failures are recorded in the Result and logged; they never abort the
// pipeline, because the next trigger retries everything. Run itself only
// returns an error for ErrPermissionDenied and context cancellation.
func (i *Installer) Run(ctx context.Context, req Request) (*Result, error) {
	result := &Result{}

	if !req.Admin {
		for _, s := range []Stage{StageBoot, StageEnvironmentReady, StageAdminInit} {
			result.Stages = append(result.Stages, StageResult{Stage: s, Skipped: "not an admin request"})
		}
		return result, nil
	}

	result.Stages = append(result.Stages, i.boot(ctx, result))
	if err := ctx.Err(); err != nil {
		return result, err
	}

	migratorRan := false
	if req.SkipMigrate {
		result.Stages = append(result.Stages, StageResult{Stage: StageEnvironmentReady, Skipped: "migration skipped by request"})
	} else {
		sr := i.environmentReady(ctx, result)
		result.Stages = append(result.Stages, sr)
		migratorRan = sr.Ran
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	sr := i.adminInit(ctx, result, migratorRan)
	result.Stages = append(result.Stages, sr)
	if errors.Is(sr.Err, migrate.ErrPermissionDenied) {
		return result, sr.Err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	i.notice(ctx, result)
	return result, nil
}

func (i *Installer) boot(ctx context.Context, result *Result) StageResult {
	sr := StageResult{Stage: StageBoot, Ran: true}

	// A first registration installs the engine enabled; later ones keep
	// whatever state the registry holds.
	c := registry.ComponentFromRecord(i.opts.Migration.Replacement)
	c.Active = true
	if err := i.opts.Registry.Register(ctx, c); err != nil {
		sr.Err = fmt.Errorf("failed to register %s: %w", c.ID, err)
		i.opts.Logger.Printf("Warning: %v", sr.Err)
		return sr
	}

	result.EngineRunning = true
	return sr
}

func (i *Installer) environmentReady(ctx context.Context, result *Result) StageResult {
	sr := StageResult{Stage: StageEnvironmentReady, Ran: true}

	res, err := i.migrator.Migrate(ctx)
	result.Migration = res
	if err != nil {
		sr.Err = err
		i.opts.Logger.Printf("Warning: migration failed: %v", err)
	} else if res.Outcome == migrate.OutcomeSkipped {
		sr.Skipped = "descriptor not found"
	}

	if err := i.opts.Registry.SetMeta(ctx, metaMigratorRan, time.Now().UTC().Format(time.RFC3339)); err != nil {
		i.opts.Logger.Printf("Warning: failed to record migrator run: %v", err)
	}
	return sr
}

func (i *Installer) adminInit(ctx context.Context, result *Result, migratorRan bool) StageResult {
	sr := StageResult{Stage: StageAdminInit}

	if !migratorRan {
		_, ranBefore, err := i.opts.Registry.GetMeta(ctx, metaMigratorRan)
		if err != nil {
			sr.Err = err
			return sr
		}
		if !ranBefore {
			sr.Skipped = "migrator has not run yet"
			return sr
		}
	}

	if !result.EngineRunning {
		sr.Skipped = "new engine is not registered"
		return sr
	}

	if !i.opts.Authorizer.CanManageComponents(ctx) {
		sr.Err = fmt.Errorf("%w: cannot deactivate components", migrate.ErrPermissionDenied)
		return sr
	}

	sr.Ran = true

	ok, err := i.verifier.Check(ctx)
	result.Migrated = ok
	if !ok {
		sr.Skipped = "descriptor not migrated yet"
		if err != nil {
			i.opts.Logger.Printf("Verification pending: %v", err)
		}
		return sr
	}

	if last, err := i.opts.Registry.LastTransition(ctx); err == nil && last != nil && last.To == migrate.Migrating.String() {
		i.transition(ctx, migrate.Migrating, migrate.Migrated, "verified "+i.verifier.Target())
	}

	for _, id := range []string{i.opts.LegacyComponent, i.opts.SelfComponent} {
		if id == "" {
			continue
		}
		done, err := i.deactivate(ctx, id)
		if err != nil {
			sr.Err = err
			i.opts.Logger.Printf("Warning: %v", err)
			continue
		}
		if !done {
			continue
		}
		result.Deactivated = append(result.Deactivated, id)
		if id == i.opts.LegacyComponent {
			i.transition(ctx, migrate.Migrated, migrate.Deactivated, "deactivated "+id)
		}
	}

	return sr
}

// deactivate turns id off if it is active and the confirm hook agrees.
func (i *Installer) deactivate(ctx context.Context, id string) (bool, error) {
	active, err := i.opts.Registry.IsActive(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", id, err)
	}
	if !active {
		return false, nil
	}
	if i.opts.Confirm != nil && !i.opts.Confirm(ctx, id) {
		i.opts.Logger.Printf("Deactivation of %s declined", id)
		return false, nil
	}
	if err := i.opts.Registry.Deactivate(ctx, id); err != nil {
		return false, fmt.Errorf("failed to deactivate %s: %w", id, err)
	}
	i.opts.Logger.Printf("Deactivated %s", id)
	return true, nil
}

func (i *Installer) transition(ctx context.Context, from, to migrate.State, detail string) {
	if err := i.opts.Registry.RecordTransition(ctx, from.String(), to.String(), detail); err != nil {
		i.opts.Logger.Printf("Warning: %v", err)
	}
}

func (i *Installer) notice(ctx context.Context, result *Result) {
	if i.opts.SelfComponent == "" {
		return
	}
	active, err := i.opts.Registry.IsActive(ctx, i.opts.SelfComponent)
	if err != nil || !active {
		return
	}
	result.Notice = Notice
}
