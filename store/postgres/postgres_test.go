package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/core/store/storetest"
	"github.com/warp/frontdesk/store/postgres"
)

const dsnEnv = "FRONTDESK_TEST_POSTGRES_DSN"

// Each subtest gets its own schema so the conformance cases start empty.
func TestPostgres_Conformance(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := context.Background()

	n := 0
	storetest.Run(t, func(t *testing.T) core.TxStore {
		n++
		schema := fmt.Sprintf("frontdesk_test_%d", n)

		admin, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		_, err = admin.Exec(ctx, `DROP SCHEMA IF EXISTS `+schema+` CASCADE`)
		require.NoError(t, err)
		_, err = admin.Exec(ctx, `CREATE SCHEMA `+schema)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = admin.Exec(context.Background(), `DROP SCHEMA IF EXISTS `+schema+` CASCADE`)
			admin.Close()
		})

		scoped := withSearchPath(dsn, schema)
		require.NoError(t, postgres.Migrate(ctx, scoped))
		pool, err := postgres.Connect(ctx, scoped)
		require.NoError(t, err)
		t.Cleanup(pool.Close)
		return postgres.NewStore(pool)
	})
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + schema
}
