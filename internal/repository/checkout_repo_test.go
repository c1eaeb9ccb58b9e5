package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"spendflow/internal/model"
)

// newDryRunDB builds a gorm handle that renders SQL without a live
// connection, for asserting on generated queries.
func newDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  "host=localhost user=test dbname=test",
		PreferSimpleProtocol: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func checkoutScopeSQL(t *testing.T, filter CheckoutFilter) string {
	t.Helper()
	var requests []model.InventoryRequest
	stmt := applyCheckoutScope(newDryRunDB(t).Model(&model.InventoryRequest{}), filter).
		Find(&requests).Statement
	return stmt.SQL.String()
}

func TestApplyCheckoutScope(t *testing.T) {
	t.Parallel()

	me := uuid.New()

	t.Run("direct manager sees own and routed", func(t *testing.T) {
		sql := checkoutScopeSQL(t, CheckoutFilter{RequesterID: &me, ManagerID: &me})
		require.Contains(t, sql, "requester_id")
		require.Contains(t, sql, "direct_manager_id")
	})

	t.Run("manager id alone still narrows", func(t *testing.T) {
		sql := checkoutScopeSQL(t, CheckoutFilter{ManagerID: &me})
		require.Contains(t, sql, "direct_manager_id")
	})

	t.Run("requester only", func(t *testing.T) {
		sql := checkoutScopeSQL(t, CheckoutFilter{RequesterID: &me})
		require.Contains(t, sql, "requester_id")
		require.NotContains(t, sql, "direct_manager_id")
	})

	t.Run("status filter", func(t *testing.T) {
		sql := checkoutScopeSQL(t, CheckoutFilter{Status: model.CheckoutSubmitted})
		require.Contains(t, sql, "status")
	})
}
