package main

import (
	"context"
	"log"
)

// masterState is the read-only master snapshot cached for one top-level
// operation. It is fetched once, reused for every destination in that
// operation, and never shared across operations.
type masterState struct {
	Schema     *SchemaSnapshot
	Indexes    map[string][]IndexDescriptor
	Triggers   []TriggerDescriptor
	Procedures []ProcedureDescriptor
}

// fetchMasterState introspects the master once. A failure here is a hard
// abort of the whole run: no migration can proceed without a master snapshot.
func fetchMasterState(ctx context.Context, master ConnectionTarget) (*masterState, error) {
	db, err := openTarget(ctx, master)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	log.Printf("introspecting master %s...", master.Identity())
	schema, err := introspectSchema(ctx, db, master.Database)
	if err != nil {
		return nil, err
	}
	indexes, err := introspectIndexes(ctx, db, master.Database)
	if err != nil {
		return nil, err
	}
	triggers, err := introspectTriggers(ctx, db, master.Database)
	if err != nil {
		return nil, err
	}
	procs, err := introspectProcedures(ctx, db, master.Database)
	if err != nil {
		return nil, err
	}
	log.Printf("master: %d tables, %d indexed tables, %d triggers, %d procedures",
		len(schema.Order), len(indexes), len(triggers), len(procs))

	return &masterState{
		Schema:     schema,
		Indexes:    indexes,
		Triggers:   triggers,
		Procedures: procs,
	}, nil
}

// runSchemaSync drives a reconciliation strategy over every destination
// sequentially and independently: one destination's failure never blocks the
// others. Each destination's connection is closed before the next opens.
func runSchemaSync(ctx context.Context, cfg *MigratorConfig, overwrite bool) ([]MigrationOutcome, error) {
	ms, err := fetchMasterState(ctx, cfg.Master)
	if err != nil {
		return nil, err
	}

	outcomes := make([]MigrationOutcome, 0, len(cfg.Destinations))
	for _, dest := range cfg.Destinations {
		outcomes = append(outcomes, syncOneDestination(ctx, ms, dest, overwrite))
	}
	return outcomes, nil
}

func syncOneDestination(ctx context.Context, ms *masterState, dest ConnectionTarget, overwrite bool) MigrationOutcome {
	outcome := MigrationOutcome{Target: dest}

	log.Printf("synchronizing schema in %s...", dest.Identity())
	db, err := openTarget(ctx, dest)
	if err != nil {
		outcome.Record(err)
		return outcome
	}
	defer db.Close()

	var subErrs []error
	if overwrite {
		subErrs, err = overwriteSchema(ctx, ms.Schema, db, dest.Database)
	} else {
		subErrs, err = updateSchema(ctx, ms.Schema, db, dest.Database)
	}
	for _, e := range subErrs {
		outcome.Record(e)
	}
	if err != nil {
		outcome.Record(err)
		return outcome
	}

	for _, e := range migrateObjects(ctx, db, dest.Database, ms) {
		outcome.Record(e)
	}

	outcome.Success = true
	return outcome
}

// runDataMigration copies row data to every destination sequentially. The
// master schema snapshot is reused read-only; the master row connection is
// opened per destination so connections stay scoped to one logical operation.
func runDataMigration(ctx context.Context, cfg *MigratorConfig, opts *RunOptions) ([]MigrationOutcome, error) {
	ms, err := fetchMasterState(ctx, cfg.Master)
	if err != nil {
		return nil, err
	}

	outcomes := make([]MigrationOutcome, 0, len(cfg.Destinations))
	for _, dest := range cfg.Destinations {
		outcomes = append(outcomes, copyOneDestination(ctx, cfg.Master, ms, dest, opts))
	}
	return outcomes, nil
}

func copyOneDestination(ctx context.Context, master ConnectionTarget, ms *masterState, dest ConnectionTarget, opts *RunOptions) MigrationOutcome {
	outcome := MigrationOutcome{Target: dest}

	log.Printf("migrating data to %s...", dest.Identity())
	destDB, err := openTarget(ctx, dest)
	if err != nil {
		outcome.Record(err)
		return outcome
	}
	defer destDB.Close()

	destSchema, err := introspectSchema(ctx, destDB, dest.Database)
	if err != nil {
		outcome.Record(err)
		return outcome
	}

	masterDB, err := openTarget(ctx, master)
	if err != nil {
		outcome.Record(err)
		return outcome
	}
	defer masterDB.Close()

	if err := runHookFiles(ctx, destDB, opts, dest.Database, opts.Hooks.BeforeData, "before_data"); err != nil {
		outcome.Record(err)
		return outcome
	}

	for _, e := range migrateData(ctx, masterDB, destDB, ms.Schema, destSchema, opts.Where, opts.BatchSize) {
		outcome.Record(e)
	}

	if err := runHookFiles(ctx, destDB, opts, dest.Database, opts.Hooks.AfterData, "after_data"); err != nil {
		outcome.Record(err)
		return outcome
	}

	outcome.Success = true
	return outcome
}
