package database

import (
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wabridge/platform/logger"
)

//go:embed migrations
var migrationsFS embed.FS

// Migration representa uma migração de banco de dados
type Migration struct {
	Version int
	Name    string
	UpSQL   string
}

// Migrator gerencia migrações de banco de dados
type Migrator struct {
	db     *Database
	logger *logger.Logger
}

// NewMigrator cria uma nova instância do migrador
func NewMigrator(db *Database, logger *logger.Logger) *Migrator {
	return &Migrator{
		db:     db,
		logger: logger,
	}
}

// RunMigrations executa todas as migrações pendentes
func (m *Migrator) RunMigrations() error {
	if err := m.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending := 0
	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.execute(migration); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		pending++
	}

	if pending > 0 {
		m.logger.InfoWithFields("Database migrations completed", map[string]interface{}{
			"migrations_applied": pending,
			"total_migrations":   len(migrations),
		})
	} else {
		m.logger.Info("Database is up to date, no migrations needed")
	}

	return nil
}

// createMigrationsTable cria tabela de controle de migrações
func (m *Migrator) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS "wbMigrations" (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			"appliedAt" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := m.db.Exec(query)
	return err
}

// loadMigrations carrega migrações do filesystem embutido
// Arquivos seguem o padrão NNNN_nome.up.sql
func (m *Migrator) loadMigrations() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		parts := strings.SplitN(strings.TrimSuffix(name, ".up.sql"), "_", 2)
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid migration filename %q: %w", name, err)
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(name, ".up.sql"),
			UpSQL:   string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// appliedVersions retorna versões já aplicadas
func (m *Migrator) appliedVersions() (map[int]bool, error) {
	var versions []int
	if err := m.db.Select(&versions, `SELECT version FROM "wbMigrations"`); err != nil {
		return nil, err
	}

	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// execute aplica uma migração dentro de uma transação
func (m *Migrator) execute(migration Migration) error {
	m.logger.InfoWithFields("Applying migration", map[string]interface{}{
		"version": migration.Version,
		"name":    migration.Name,
	})

	tx, err := m.db.Beginx()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(migration.UpSQL); err != nil {
		_ = tx.Rollback()
		return err
	}

	insert := tx.Rebind(`INSERT INTO "wbMigrations" (version, name) VALUES (?, ?)`)
	if _, err := tx.Exec(insert, migration.Version, migration.Name); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}
