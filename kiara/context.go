// Package kiara implements the Context (C10): the process-local
// container that owns exactly one of each registry (types, values,
// modules, jobs, events, operations) plus a set of named archive mount
// points, and exposes the blueprint-build/run entry points host
// applications use. Grounded on engine.Engine's "owns registries, wires
// handlers, exposes Start/Stop" shape and engine_builder.go's fluent
// construction (_examples/GoCodeAlone-workflow/engine.go,
// engine_builder.go), but without the modular.Application dependency:
// that dependency wires the CLI/front-end module graph, which is out of
// scope here, so Context wires the six components directly as plain Go
// struct fields.
package kiara

import (
	"log/slog"
	"sync"

	"github.com/DHARPA-Project/kiara-sub003/archive"
	"github.com/DHARPA-Project/kiara-sub003/event"
	"github.com/DHARPA-Project/kiara-sub003/job"
	"github.com/DHARPA-Project/kiara-sub003/kerr"
	"github.com/DHARPA-Project/kiara-sub003/manifest"
	"github.com/DHARPA-Project/kiara-sub003/operation"
	"github.com/DHARPA-Project/kiara-sub003/pipeline"
	"github.com/DHARPA-Project/kiara-sub003/types"
	"github.com/DHARPA-Project/kiara-sub003/value"
	"github.com/google/uuid"
)

// Context is a process-local orchestration root. Two contexts never
// share mutable state (spec §4.10: "contexts are isolable"): each holds
// its own registries and archive map, constructed fresh by New.
type Context struct {
	ID   uuid.UUID
	Name string
	Env  Environment

	Types      *types.Registry
	Values     *value.Registry
	Modules    *manifest.Registry
	Jobs       *job.Scheduler
	Events     *event.Bus
	Operations *operation.Registry

	logger *slog.Logger

	mu       sync.RWMutex
	archives map[string]archive.Store
	locked   bool
}

// settings collects construction-time choices. Options are gathered
// before any registry is built so they can flow into the registry
// constructors that need them, rather than mutating an already-wired
// Context (which would leave the scheduler/operation registry holding a
// stale *value.Registry pointer).
type settings struct {
	name              string
	logger            *slog.Logger
	aliasReverseIndex bool
}

// Option configures a Context at construction time.
type Option func(*settings)

// WithName sets the context's human-readable name.
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithAliasReverseIndex threads the value registry's alias
// reverse-index option through to its constructor.
func WithAliasReverseIndex(enabled bool) Option {
	return func(s *settings) { s.aliasReverseIndex = enabled }
}

// New wires a fresh Context: one each of the six components, bound
// together (the value registry emits through the event bus, the job
// scheduler holds the module and value registries, the operation
// registry holds the module and type registries), and an empty archive
// mount table.
func New(env Environment, opts ...Option) *Context {
	s := settings{logger: slog.Default(), aliasReverseIndex: true}
	for _, opt := range opts {
		opt(&s)
	}

	typeRegistry := types.NewRegistry()
	eventBus := event.NewBus()
	valueRegistry := value.NewRegistry(typeRegistry,
		value.WithEventEmitter(eventBus),
		value.WithAliasReverseIndex(s.aliasReverseIndex))
	moduleRegistry := manifest.NewRegistry()
	metrics := job.NewMetrics()
	scheduler := job.NewScheduler(moduleRegistry, valueRegistry, eventBus, metrics)
	opRegistry := operation.NewRegistry(moduleRegistry, typeRegistry)

	c := &Context{
		ID:         uuid.New(),
		Name:       s.name,
		Env:        env,
		Types:      typeRegistry,
		Values:     valueRegistry,
		Modules:    moduleRegistry,
		Jobs:       scheduler,
		Events:     eventBus,
		Operations: opRegistry,
		archives:   make(map[string]archive.Store),
	}
	if c.Name == "" {
		c.Name = c.ID.String()
	}
	c.logger = s.logger.With("kiara_id", c.ID.String())
	return c
}

// MountArchive attaches a as the named store (spec §6: "archive_id,
// archive_name, is_writable, supported_item_types") and, if this
// context is not locked, calls its OnMount hook exactly once. Every
// mounted archive is also reachable through the value registry so
// value.Registry.Store can persist through it by name; an archive
// mounted under the conventional name "jobs" is additionally wired into
// the job scheduler so completed job Records are written there.
func (c *Context) MountArchive(a archive.Store) error {
	c.mu.Lock()
	if c.locked {
		c.mu.Unlock()
		return kerr.New(kerr.KindContextLocked, "cannot mount archive on a locked context").
			WithDetail("archive_name", a.ArchiveName())
	}
	name := a.ArchiveName()
	c.archives[name] = a
	c.mu.Unlock()

	if mounter, ok := a.(archive.OnMounter); ok {
		if err := mounter.OnMount(); err != nil {
			return kerr.Wrap(kerr.KindArchiveWriteFailed, "archive OnMount failed", err).
				WithDetail("archive_name", name)
		}
	}
	c.Values.MountArchive(name, a)
	if name == "jobs" {
		c.Jobs.MountJobArchive(a)
	}
	c.logger.Info("archive mounted", "archive_name", name, "writable", a.IsWritable())
	return nil
}

// Archive returns the store mounted under name.
func (c *Context) Archive(name string) (archive.Store, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.archives[name]
	return a, ok
}

// Lock marks the context locked (spec §6: lock_context), after which
// MountArchive refuses new mounts. It does not acquire any OS-level or
// cross-process lock; Environment.LockContext is a declared option a
// host process is expected to honor by not opening the same on-disk
// archives from two processes simultaneously — this orchestration core
// has no notion of "disk" to lock.
func (c *Context) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = true
}

// BuildPipeline parses a wire-format blueprint document and compiles it
// into a pipeline.Structure bound to this context's module and type
// registries, returning the declared input/output alias bindings
// alongside it. The aliases are returned as parsed; they are not
// applied to the structure or to the value registry.
func (c *Context) BuildPipeline(document []byte) (*pipeline.Structure, AliasBindings, error) {
	bp, aliases, err := ParseBlueprint(document)
	if err != nil {
		return nil, AliasBindings{}, err
	}
	bp.Inputs = c.inferPipelineInputs(bp)
	structure, err := pipeline.Build(bp, c.Modules, c.Types)
	if err != nil {
		return nil, AliasBindings{}, err
	}
	return structure, aliases, nil
}

// inferPipelineInputs derives the pipeline-level input contract the wire
// blueprint format leaves implicit: every field a step links via
// LinkFromInput becomes a pipeline input, typed after the field schema
// the target step's module class declares for it. The wire format (spec
// §6) has no separate top-level input schema section, so this is
// reconstructed from the steps themselves rather than parsed directly.
func (c *Context) inferPipelineInputs(bp pipeline.Blueprint) map[string]manifest.FieldSchema {
	inputs := make(map[string]manifest.FieldSchema)
	for _, step := range bp.Steps {
		class, err := c.Modules.Class(step.Manifest.ModuleType)
		if err != nil {
			continue // surfaced again, with full context, by pipeline.Build
		}
		inputsSchema := class.InputsSchema()
		for field, link := range step.Inputs {
			if link.Kind != pipeline.LinkFromInput {
				continue
			}
			if _, ok := inputs[link.PipelineInputField]; !ok {
				inputs[link.PipelineInputField] = inputsSchema[field]
			}
		}
	}
	return inputs
}

// NewRuntime creates a pipeline.Runtime for structure. Steps dispatch
// through this context's job scheduler rather than the module registry
// directly, so pipeline-driven execution goes through the same
// cache/singleflight/metrics/archive machinery as any other job
// submission, using the cache strategy configured on the environment.
func (c *Context) NewRuntime(structure *pipeline.Structure) *pipeline.Runtime {
	return pipeline.NewRuntime(structure, c.Jobs, c.Values, c.Events, c.Env.JobCache)
}
