/*
Package reconciler runs the orphan sweep on a timer.

Records and engine containers are created and removed in two steps that
cannot share a transaction, so they can drift apart after a crash or a
partial failure. The Reconciler calls lifecycle.Manager.Sweep every
sweep_interval and logs what it finds; the sweep itself publishes an
EventOrphansDetected and sets gpubox_orphans. Repair stays a manual,
administrator decision.

	r := reconciler.NewReconciler(mgr, cfg.SweepInterval, cfg.Timeouts.Default)
	r.Start()
	defer r.Stop()
*/
package reconciler
