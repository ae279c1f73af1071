// Package telemetry instruments reconciliation runs.
//
// It bundles four concerns behind one Telemetry value:
//
//   - Logger: zerolog, console or JSON, scoped by component, run and resource
//   - Tracer: OpenTelemetry spans (run.reconcile, resource.<kind>) exported
//     to stdout or an OTLP collector over gRPC
//   - Metrics: a private Prometheus registry, written to a node_exporter
//     textfile after one-shot runs or served over HTTP by watch
//   - Events: run.started, resource.completed, run.completed and
//     policy.violation, fanned out to subscribers
//
// Typical setup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/stackprov.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Nop returns an instance that records nothing, for tests and library use.
package telemetry
