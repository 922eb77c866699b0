// Package containers manages the shared test containers behind the
// integration suites (build with -tags integration). Containers are started
// once per test binary and shared across suites; Ryuk reaps them when the
// run ends.
package containers
