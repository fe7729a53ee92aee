// pkg/mask/vault.go
package mask

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const (
	vaultInsertSQL = `INSERT INTO token_vault (original_id, token_uuid) VALUES ($1, $2) ON CONFLICT (original_id) DO NOTHING`
	vaultSelectSQL = `SELECT token_uuid FROM token_vault WHERE original_id = $1`
)

// VaultStore is the slice of the destination database the vault needs.
// *sqlx.DB satisfies it.
type VaultStore interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Vault maps original identifiers to stable opaque tokens backed by the
// token_vault table. The table's uniqueness constraint on original_id is
// what guarantees at most one token per identifier: concurrent callers all
// race through the conditional insert and then read back the single row
// that won. Look-up-then-insert would admit duplicate tokens under
// concurrency; the conditional insert does not.
type Vault struct {
	store VaultStore
}

// NewVault creates a vault over the destination store.
func NewVault(store VaultStore) *Vault {
	return &Vault{store: store}
}

// GetOrCreate returns the token for originalID, minting and durably
// recording a fresh one when none exists. Safe to call from any number of
// concurrent workers: all callers observe the same token.
func (v *Vault) GetOrCreate(ctx context.Context, originalID string) (string, error) {
	candidate := uuid.New().String()

	if _, err := v.store.ExecContext(ctx, vaultInsertSQL, originalID, candidate); err != nil {
		return "", fmt.Errorf("token vault conditional insert: %w", err)
	}

	// Read back the winning row; it is ours unless another caller got
	// there first.
	var token string
	if err := v.store.GetContext(ctx, &token, vaultSelectSQL, originalID); err != nil {
		return "", fmt.Errorf("token vault lookup: %w", err)
	}

	return token, nil
}
