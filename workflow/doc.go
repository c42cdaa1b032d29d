// Package workflow runs chains as units of work.
//
// # Overview
//
// A Workflow wraps one orchestrator run: it has a name, runs once and exposes
// its report while running. The server's runner and the CLI both run
// workflows rather than orchestrators, so they can treat every configured
// chain the same way.
//
// # Concurrency
//
// Compose groups independent workflows and Group.Execute runs them in
// parallel with an errgroup:
//
//	g := workflow.Compose([]workflow.Workflow{a, b}, workflow.WithConcurrency(2))
//	reports, err := g.Execute(ctx)
//
// Workflows in a group do not cancel each other. A chain that fails keeps
// tearing down its own resources while the others continue, and every chain
// gets its own report. err is non-nil only for workflows that could not run
// at all; check the reports for run outcomes.
//
// # Status
//
// Snapshot and Group.Snapshots are safe to call during Execute and are what the
// status endpoint serves.
package workflow
