package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"wabridge/internal/core/account"
)

// AccountRepository implementa account.Repository sobre SQL.
// Guarda apenas o vínculo accountId -> deviceJid; todo o estado vivo de
// conexão fica em memória no Manager.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository cria uma nova instância do repositório de contas
func NewAccountRepository(db *sqlx.DB) account.Repository {
	return &AccountRepository{
		db: db,
	}
}

// Save registra a conta, preservando o telefone de referência já gravado
// quando a chamada não traz um novo
func (r *AccountRepository) Save(ctx context.Context, accountID, referencePhone string) error {
	query := r.db.Rebind(`
		INSERT INTO "waAccounts" ("accountId", "referencePhone", "createdAt", "updatedAt")
		VALUES (?, ?, ?, ?)
		ON CONFLICT ("accountId") DO UPDATE SET
			"referencePhone" = COALESCE(excluded."referencePhone", "waAccounts"."referencePhone"),
			"updatedAt" = excluded."updatedAt"
	`)

	phone := sql.NullString{String: referencePhone, Valid: referencePhone != ""}
	now := time.Now()
	if _, err := r.db.ExecContext(ctx, query, accountID, phone, now, now); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// SetDeviceJID grava o dispositivo pareado de uma conta
func (r *AccountRepository) SetDeviceJID(ctx context.Context, accountID, deviceJID string) error {
	query := r.db.Rebind(`
		UPDATE "waAccounts"
		SET "deviceJid" = ?, "updatedAt" = ?
		WHERE "accountId" = ?
	`)

	result, err := r.db.ExecContext(ctx, query, deviceJID, time.Now(), accountID)
	if err != nil {
		return fmt.Errorf("failed to set device JID: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// GetDeviceJID retorna o dispositivo pareado, ou vazio se não houver
func (r *AccountRepository) GetDeviceJID(ctx context.Context, accountID string) (string, error) {
	query := r.db.Rebind(`SELECT "deviceJid" FROM "waAccounts" WHERE "accountId" = ?`)

	var deviceJID sql.NullString
	err := r.db.GetContext(ctx, &deviceJID, query, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get device JID: %w", err)
	}
	return deviceJID.String, nil
}

// Delete remove a conta persistida
func (r *AccountRepository) Delete(ctx context.Context, accountID string) error {
	query := r.db.Rebind(`DELETE FROM "waAccounts" WHERE "accountId" = ?`)

	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// ListAccountIDs retorna os ids de todas as contas persistidas
func (r *AccountRepository) ListAccountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	query := `SELECT "accountId" FROM "waAccounts" ORDER BY "createdAt"`

	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return ids, nil
}
