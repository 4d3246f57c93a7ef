// Package pg provides PostgreSQL connection management with retries,
// goose migrations, health checking and transaction propagation.
//
// Connect builds a pgxpool.Pool from Config and verifies it with a ping,
// retrying with exponential backoff (sethvargo/go-retry) so a service that
// starts before its database does not crash-loop:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
// MigrateFS applies goose migrations from any fs.FS, usually an embedded
// directory owned by the package that defines the schema. Migrate does the
// same for cfg.MigrationsPath on disk.
//
//	if err := pg.MigrateFS(ctx, pool, pgstore.Migrations(), cfg, log); err != nil {
//		return err
//	}
//
// Repositories take part in a caller's transaction through the context:
// InTx begins a transaction and stores it with WithTx, and Conn returns that
// transaction (or the pool when there is none) so the same query code runs
// in both cases.
//
//	err := pg.InTx(ctx, pool, func(ctx context.Context) error {
//		_, err := pg.Conn(ctx, pool).Exec(ctx, "UPDATE ...")
//		return err
//	})
//
// IsNotFoundError, IsDuplicateKeyError, IsForeignKeyViolationError and
// IsTxClosedError classify driver errors.
package pg
