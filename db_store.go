package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

type DBDialect string

const (
	dialectSQLite   DBDialect = "sqlite"
	dialectPostgres DBDialect = "postgres"
)

var ErrDocumentNotFound = errors.New("catalog document not found")

// SQLRepository stores imported data documents verbatim so the planner can
// load its catalog from a database instead of the filesystem.
type SQLRepository struct {
	dialect DBDialect
	db      *sql.DB
}

type catalogDocument struct {
	Name       string
	Payload    []byte
	Checksum   string
	ImportedAt time.Time
}

func openRepository(cfg Config) (*SQLRepository, error) {
	dialectRaw := strings.TrimSpace(strings.ToLower(cfg.DBDialect))
	if dialectRaw == "" {
		dialectRaw = string(dialectSQLite)
	}
	dialect := DBDialect(dialectRaw)

	var driverName string
	var dsn string
	switch dialect {
	case dialectSQLite:
		driverName = "sqlite"
		path := strings.TrimSpace(cfg.DBSQLitePath)
		if path == "" {
			path = filepath.Join("tmp", "drifter_catalog.sqlite")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		dsn = path
	case dialectPostgres:
		driverName = "pgx"
		dsn = strings.TrimSpace(cfg.DBPostgresDSN)
		if dsn == "" {
			dsn = strings.TrimSpace(cfg.DatabaseURL)
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", dialectRaw)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	repo := &SQLRepository{dialect: dialect, db: db}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("database ready", zap.String("dialect", string(dialect)))
	return repo, nil
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// placeholder returns the dialect's positional parameter for pos (1-based).
func (r *SQLRepository) placeholder(pos int) string {
	if r.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

func (r *SQLRepository) insertStmt(table string, cols ...string) string {
	params := make([]string, 0, len(cols))
	for i := range cols {
		params = append(params, r.placeholder(i+1))
	}
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(params, ", ") + ")"
}

const createMigrationTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL
	)
`

// appliedMigrations lists the migration file names already recorded.
func (r *SQLRepository) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()
	done := map[string]bool{}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan schema migration: %w", err)
		}
		done[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema migrations: %w", err)
	}
	return done, nil
}

// migrate applies the dialect's embedded migrations that are not yet
// recorded, each in its own transaction, in file name order.
func (r *SQLRepository) migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createMigrationTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := r.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	files, err := fs.Glob(migrationFS, path.Join("migrations", string(r.dialect), "*.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)
	record := r.insertStmt("schema_migrations", "version", "applied_at")
	for _, file := range files {
		version := path.Base(file)
		if done[version] {
			continue
		}
		if err := r.applyMigration(ctx, file, version, record); err != nil {
			return err
		}
		logger.Info("catalog migration applied", zap.String("dialect", string(r.dialect)), zap.String("version", version))
	}
	return nil
}

func (r *SQLRepository) applyMigration(ctx context.Context, file, version, record string) error {
	body, err := migrationFS.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", version, err)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, record, version, time.Now().UTC()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

// SaveDocuments replaces the stored copy of each document in one
// transaction.
func (r *SQLRepository) SaveDocuments(ctx context.Context, docs []catalogDocument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import tx: %w", err)
	}
	del := "DELETE FROM catalog_documents WHERE name = " + r.placeholder(1)
	ins := r.insertStmt("catalog_documents", "name", "payload", "checksum", "imported_at")
	for _, doc := range docs {
		if _, err := tx.ExecContext(ctx, del, doc.Name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear document %s: %w", doc.Name, err)
		}
		if _, err := tx.ExecContext(ctx, ins, doc.Name, string(doc.Payload), doc.Checksum, doc.ImportedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert document %s: %w", doc.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import tx: %w", err)
	}
	return nil
}

// Fetch makes the repository a Source.
func (r *SQLRepository) Fetch(ctx context.Context, name string) ([]byte, error) {
	q := "SELECT payload FROM catalog_documents WHERE name = " + r.placeholder(1)
	var payload string
	err := r.db.QueryRowContext(ctx, q, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", name, err)
	}
	return []byte(payload), nil
}

func (r *SQLRepository) ListDocuments(ctx context.Context) ([]catalogDocument, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name, checksum, imported_at FROM catalog_documents ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var out []catalogDocument
	for rows.Next() {
		var d catalogDocument
		if err := rows.Scan(&d.Name, &d.Checksum, &d.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// importCatalog copies every manifest document from src into the
// repository. Each document is parsed first so a broken file never lands.
func importCatalog(ctx context.Context, src Source, m Manifest, repo *SQLRepository, now time.Time) ([]catalogDocument, error) {
	var docs []catalogDocument
	fetch := func(name string, parse func([]byte) error) error {
		body, err := src.Fetch(ctx, name)
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		if err := parse(body); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		docs = append(docs, catalogDocument{Name: name, Payload: body, Checksum: hex.EncodeToString(sum[:]), ImportedAt: now})
		return nil
	}
	for _, name := range m.DrifterFiles {
		err := fetch(name, func(b []byte) error {
			_, err := parseDrifterDocument(b)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	err := fetch(m.CompanionsFile, func(b []byte) error {
		comps, err := parseCompanionDocument(b)
		if err == nil && len(comps) == 0 {
			return ErrNoCompanions
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := repo.SaveDocuments(ctx, docs); err != nil {
		return nil, err
	}
	for _, d := range docs {
		logger.Info("document imported", zap.String("name", d.Name), zap.String("checksum", shortChecksum(d.Checksum)))
	}
	return docs, nil
}

func shortChecksum(sum string) string {
	if len(sum) <= 12 {
		return sum
	}
	return sum[:12]
}
