// Package database provides the bridge's SQLite storage.
//
// It opens the database with WAL mode and a busy timeout, and applies
// versioned migrations recorded in schema_migrations. Config entries and
// entity registrations live here; connectivity state does not.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
//	    return err
//	}
package database
