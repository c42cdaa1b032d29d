// Package remote manages resources created and destroyed by shell commands on a
// remote host.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"text/template"

	"github.com/brightkeycloud-chad/lifecycle/orchestrator"
)

// ExitTempFail is the exit status (EX_TEMPFAIL) a create or delete command uses
// to ask for a retry.
const ExitTempFail = 75

// Runner runs a command on the remote host.
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, err error)
}

// CommandCapability runs the create and delete params as command templates.
//
// The create command's last line of output becomes the external ID; with no output
// the step name is used. The create template sees .Step, .Params and .Deps (the
// attributes of each dependency by step name, with "id" holding its external ID).
// The delete template sees .Step, .ExternalID and .Params, where Params are the
// handle's attributes.
// A delete command exiting with the status in the absent_exit_code param reports
// the resource as already gone.
type CommandCapability struct {
	runner Runner
	logger *slog.Logger
}

// NewCommandCapability creates a capability running commands through runner.
func NewCommandCapability(runner Runner, logger *slog.Logger) *CommandCapability {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandCapability{runner: runner, logger: logger.With("component", "remote")}
}

type templateData struct {
	Step       string
	ExternalID string
	Params     map[string]string
	Deps       map[string]map[string]string
}

// Create runs the create command.
func (c *CommandCapability) Create(ctx context.Context, req orchestrator.CreateRequest) (orchestrator.CreateResult, error) {
	deps := make(map[string]map[string]string, len(req.Dependencies))
	for name, h := range req.Dependencies {
		attrs := make(map[string]string, len(h.Attributes)+1)
		for k, v := range h.Attributes {
			attrs[k] = v
		}
		attrs["id"] = h.ExternalID
		deps[name] = attrs
	}
	cmd, err := render(req.Step+".create", req.Params["create"], templateData{Step: req.Step, Params: req.Params, Deps: deps})
	if err != nil {
		return orchestrator.CreateResult{}, err
	}
	if cmd == "" {
		return orchestrator.CreateResult{}, fmt.Errorf("step %s: create command is empty", req.Step)
	}

	stdout, stderr, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return orchestrator.CreateResult{}, classify("create "+req.Step, err, stderr, -1)
	}

	id := lastLine(stdout)
	if id == "" {
		id = req.Step
	}
	attrs := map[string]string{"command": cmd}
	for _, k := range []string{"delete", "absent_exit_code"} {
		if v := req.Params[k]; v != "" {
			attrs[k] = v
		}
	}
	c.logger.Info("remote resource created", "step", req.Step, "id", id)
	return orchestrator.CreateResult{ExternalID: id, Attributes: attrs}, nil
}

// Delete runs the delete command. With no delete param the resource is left alone.
func (c *CommandCapability) Delete(ctx context.Context, h orchestrator.ResourceHandle) error {
	tmpl := h.Attr("delete")
	if tmpl == "" {
		c.logger.Warn("no delete command, leaving resource", "step", h.Step, "id", h.ExternalID)
		return nil
	}
	cmd, err := render(h.Step+".delete", tmpl, templateData{Step: h.Step, ExternalID: h.ExternalID, Params: h.Attributes})
	if err != nil {
		return err
	}

	absent := -1
	if s := h.Attr("absent_exit_code"); s != "" {
		if absent, err = strconv.Atoi(s); err != nil {
			return fmt.Errorf("step %s: bad absent_exit_code %q", h.Step, s)
		}
	}
	_, stderr, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return classify("delete "+h.Step, err, stderr, absent)
	}
	c.logger.Info("remote resource deleted", "step", h.Step, "id", h.ExternalID)
	return nil
}

// exitStatuser is implemented by *ssh.ExitError.
type exitStatuser interface {
	ExitStatus() int
}

func classify(op string, err error, stderr string, absentStatus int) error {
	detail := err
	if msg := strings.TrimSpace(stderr); msg != "" {
		detail = fmt.Errorf("%w: %s", err, msg)
	}
	var (
		exit   exitStatuser
		status int
	)
	ok := errors.As(err, &exit)
	if ok {
		status = exit.ExitStatus()
	}
	switch {
	case ok && status == ExitTempFail:
		return orchestrator.Transient(op, detail)
	case ok && absentStatus >= 0 && status == absentStatus:
		return fmt.Errorf("%s: %w", op, orchestrator.ErrResourceAbsent)
	default:
		return fmt.Errorf("%s: %w", op, detail)
	}
}

func render(name, text string, data templateData) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing %s template: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s template: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
