// Package sandbox is an in-memory cloud for demos and tests.
//
// Resources become visible to dependent steps only after a configurable number of
// lookups, so chains run against the sandbox exercise the same eventual-consistency
// retries as chains run against a real provider. Deployed units run registered Go
// handlers as their workload.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

const idPrefix = "sandbox:"

// Handler is the workload of a deployed unit. Env holds the unit's environment,
// which configuration-change steps may update.
type Handler func(ctx context.Context, env map[string]string, payload any) (any, error)

type resource struct {
	id        string
	kind      orchestrator.Kind
	name      string
	attrs     map[string]string
	env       map[string]string
	handler   string
	invisible int
	invoked   int
	createdAt time.Time
}

// Cloud holds the resources created through its capabilities.
type Cloud struct {
	mu         sync.Mutex
	resources  map[string]*resource
	handlers   map[string]Handler
	visibility int
	seq        int
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Cloud.
type Option func(*Cloud)

// WithVisibility sets how many lookups by a dependent step fail with a
// consistency error before a new resource is visible. Zero makes resources
// visible immediately.
func WithVisibility(n int) Option {
	return func(c *Cloud) {
		c.visibility = n
	}
}

// WithHandler registers a workload that deployed units can name in their handler param.
func WithHandler(name string, h Handler) Option {
	return func(c *Cloud) {
		c.handlers[name] = h
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cloud) {
		c.logger = logger.With("component", "sandbox")
	}
}

// WithClock sets the time source for CreatedAt attributes.
func WithClock(now func() time.Time) Option {
	return func(c *Cloud) {
		c.now = now
	}
}

// New creates an empty cloud with the built-in area and direct handlers registered.
func New(opts ...Option) *Cloud {
	c := &Cloud{
		resources: make(map[string]*resource),
		handlers: map[string]Handler{
			"area":   AreaHandler,
			"direct": DirectHandler,
		},
		now:    time.Now,
		logger: slog.Default().With("component", "sandbox"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capability returns the capability managing resources of kind.
// Deployed units also implement orchestrator.Inspector.
func (c *Cloud) Capability(kind orchestrator.Kind) orchestrator.Capability {
	base := capability{cloud: c, kind: kind}
	switch kind {
	case orchestrator.KindDeployedUnit:
		return unitCapability{base}
	case orchestrator.KindConfigurationChange:
		return configCapability{base}
	default:
		return base
	}
}

// Exists reports whether a resource with the external ID is present.
func (c *Cloud) Exists(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.resources[id]
	return ok
}

// Resources returns the IDs of every live resource, sorted.
func (c *Cloud) Resources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.resources))
	for id := range c.resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Env returns a copy of a deployed unit's environment.
func (c *Cloud) Env(id string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.resources[id]; ok {
		return maps.Clone(r.env)
	}
	return nil
}

// Invoke runs the unit's handler with payload. It implements orchestrator.Invoker.
func (c *Cloud) Invoke(ctx context.Context, unit orchestrator.ResourceHandle, payload any) (any, error) {
	c.mu.Lock()
	r, ok := c.resources[unit.ExternalID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("invoke %s: %w", unit.ExternalID, orchestrator.ErrResourceAbsent)
	}
	if r.kind != orchestrator.KindDeployedUnit {
		c.mu.Unlock()
		return nil, fmt.Errorf("invoke %s: resource is a %s, not a deployed unit", r.id, r.kind)
	}
	name, handler := r.name, r.handler
	h := c.handlers[handler]
	env := maps.Clone(r.env)
	r.invoked++
	c.mu.Unlock()

	c.logger.Debug("invoking unit", "unit", name, "handler", handler)
	return h(ctx, env, payload)
}

// lookup checks that a dependency exists and is visible. Each lookup of an
// invisible resource brings it closer to visible. Resources owned by other
// providers are not checked.
func (c *Cloud) lookup(dep orchestrator.ResourceHandle) error {
	if !strings.HasPrefix(dep.ExternalID, idPrefix) {
		return nil
	}
	r, ok := c.resources[dep.ExternalID]
	if !ok {
		return fmt.Errorf("dependency %s (%s) does not exist", dep.Step, dep.ExternalID)
	}
	if r.invisible > 0 {
		r.invisible--
		return orchestrator.Transient("lookup "+dep.Step, fmt.Errorf("%s %s is not yet visible", r.kind, r.id))
	}
	return nil
}

func (c *Cloud) add(kind orchestrator.Kind, name string, attrs map[string]string) *resource {
	c.seq++
	prefix := strings.ReplaceAll(kind.String(), "_", "-")
	r := &resource{
		id:        fmt.Sprintf("%s%s-%04d", idPrefix, prefix, c.seq),
		kind:      kind,
		name:      name,
		attrs:     attrs,
		invisible: c.visibility,
		createdAt: c.now(),
	}
	r.attrs["id"] = r.id
	r.attrs["name"] = name
	r.attrs["created_at"] = r.createdAt.UTC().Format(time.RFC3339)
	c.resources[r.id] = r
	return r
}

type capability struct {
	cloud *Cloud
	kind  orchestrator.Kind
}

// Create checks every dependency is visible, then records the resource.
// The param fail makes the create fail permanently with its value as the message.
func (p capability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	c := p.cloud
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDependencies(req); err != nil {
		return orchestrator.CreateResult{}, err
	}
	if msg := req.Params["fail"]; msg != "" {
		return orchestrator.CreateResult{}, fmt.Errorf("create %s: %s", req.Step, msg)
	}

	attrs := map[string]string{}
	if p.kind == orchestrator.KindLogGroup {
		if unit, ok := req.Dependency(orchestrator.KindDeployedUnit); ok {
			attrs["log_group"] = "/sandbox/" + unit.Attr("name")
		}
	}
	r := c.add(p.kind, req.Param("name", req.Step), attrs)
	c.logger.Info("created resource", "kind", p.kind, "id", r.id)
	return orchestrator.CreateResult{ExternalID: r.id, Attributes: maps.Clone(r.attrs)}, nil
}

func (c *Cloud) checkDependencies(req orchestrator.CreateRequest) error {
	names := make([]string, 0, len(req.Dependencies))
	for name := range req.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := c.lookup(req.Dependencies[name]); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the resource. Missing resources report ErrResourceAbsent.
func (p capability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	c := p.cloud
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.resources[h.ExternalID]; !ok {
		return fmt.Errorf("delete %s: %w", h.ExternalID, orchestrator.ErrResourceAbsent)
	}
	delete(c.resources, h.ExternalID)
	c.logger.Info("deleted resource", "kind", p.kind, "id", h.ExternalID)
	return nil
}

type unitCapability struct {
	capability
}

// Create records a deployed unit running the handler named by the handler param
// (default "area"). Env params of the form env.KEY seed its environment.
func (p unitCapability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	c := p.cloud
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkDependencies(req); err != nil {
		return orchestrator.CreateResult{}, err
	}
	handler := req.Param("handler", "area")
	if _, ok := c.handlers[handler]; !ok {
		return orchestrator.CreateResult{}, fmt.Errorf("create %s: unknown handler %q", req.Step, handler)
	}

	attrs := map[string]string{"handler": handler}
	if role, ok := req.Dependency(orchestrator.KindRole); ok {
		attrs["role"] = role.ExternalID
	}
	if pkg, ok := req.Dependency(orchestrator.KindArtifactPackage); ok {
		attrs["package"] = pkg.ExternalID
	}
	r := c.add(orchestrator.KindDeployedUnit, req.Param("name", req.Step), attrs)
	r.handler = handler
	r.env = envParams(req.Params)
	c.logger.Info("created deployed unit", "id", r.id, "handler", handler)
	return orchestrator.CreateResult{ExternalID: r.id, Attributes: maps.Clone(r.attrs)}, nil
}

// Inspect reports the unit's operational state.
func (p unitCapability) Inspect(ctx context.Context, h orchestrator.ResourceHandle) (map[string]string, error) {
	c := p.cloud
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.resources[h.ExternalID]
	if !ok {
		return nil, fmt.Errorf("inspect %s: %w", h.ExternalID, orchestrator.ErrResourceAbsent)
	}
	state := map[string]string{
		"state":       "Active",
		"handler":     r.handler,
		"invocations": fmt.Sprint(r.invoked),
	}
	for k, v := range r.env {
		state["env."+k] = v
	}
	return state, nil
}

// Invoke runs the unit's handler.
func (p unitCapability) Invoke(ctx context.Context, unit orchestrator.ResourceHandle, payload any) (any, error) {
	return p.cloud.Invoke(ctx, unit, payload)
}

type configCapability struct {
	capability
}

// Create applies env.KEY params to the deployed unit it depends on.
func (p configCapability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	c := p.cloud
	c.mu.Lock()
	defer c.mu.Unlock()

	unit, ok := req.Dependency(orchestrator.KindDeployedUnit)
	if !ok {
		return orchestrator.CreateResult{}, fmt.Errorf("create %s: a configuration change must depend on a deployed unit", req.Step)
	}
	if err := c.lookup(unit); err != nil {
		return orchestrator.CreateResult{}, err
	}
	target, ok := c.resources[unit.ExternalID]
	if !ok {
		return orchestrator.CreateResult{}, fmt.Errorf("create %s: unit %s is not a sandbox resource", req.Step, unit.ExternalID)
	}
	if target.env == nil {
		target.env = map[string]string{}
	}
	changed := envParams(req.Params)
	maps.Copy(target.env, changed)

	c.seq++
	id := fmt.Sprintf("%s@%d", target.id, c.seq)
	c.logger.Info("updated unit configuration", "unit", target.id, "keys", len(changed))
	return orchestrator.CreateResult{ExternalID: id, Attributes: map[string]string{"unit": target.id}}, nil
}

// Delete is a no-op; deleting the unit removes its configuration.
func (p configCapability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	return nil
}

func envParams(params map[string]string) map[string]string {
	env := map[string]string{}
	for k, v := range params {
		if key, ok := strings.CutPrefix(k, "env."); ok {
			env[key] = v
		}
	}
	return env
}
