package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestConstraintClassification(t *testing.T) {
	unique := fmt.Errorf("insert product: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsForeignKeyViolation(unique))
	require.True(t, IsForeignKeyViolation(fk))
	require.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestSchemaDeclaresCoreTables(t *testing.T) {
	schema := Schema()
	for _, table := range []string{"materials", "products", "product_material_map", "sales", "purchase_orders", "vendors", "users", "stock_movements", "audit_logs"} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	require.Contains(t, schema, "purchase_order_seq")
	require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS projection_versions")
	for _, trigger := range []string{
		"materials_atrisk_version\n    AFTER INSERT OR UPDATE OR DELETE ON materials\n    DEFERRABLE INITIALLY DEFERRED",
		"recipe_atrisk_version\n    AFTER INSERT OR UPDATE OR DELETE ON product_material_map\n    DEFERRABLE INITIALLY DEFERRED",
		"products_atrisk_version\n    AFTER UPDATE OR DELETE ON products\n    DEFERRABLE INITIALLY DEFERRED",
	} {
		require.Contains(t, schema, "CREATE CONSTRAINT TRIGGER "+trigger)
	}
}
