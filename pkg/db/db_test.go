package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"repairshop/pkg/config"
	"repairshop/pkg/logger"
)

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://user:pw@db:5432/shop":            "db:5432/shop",
		"postgres://db:5432/shop?sslmode=disable":    "db:5432/shop",
		"user:pw@db:5432/shop":                       "***@db:5432/shop",
		"host=db user=shop password=secret dbname=x": "host=db user=shop dbname=x",
		"db:5432/shop":                               "db:5432/shop",
	}
	for in, want := range cases {
		require.Equal(t, want, redactDSN(in), in)
	}
}

func TestMustConnectWithoutDSN(t *testing.T) {
	require.Nil(t, MustConnect(config.Config{}, logger.Nop()))
	require.Nil(t, MustRedis(config.Config{}, logger.Nop()))
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cli, err := Redis(context.Background(), "redis://"+mr.Addr()+"/0", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	require.NoError(t, cli.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)

	_, err = Redis(context.Background(), "http://not-redis", time.Second)
	require.Error(t, err)

	mr.Close()
	_, err = Redis(context.Background(), "redis://"+mr.Addr(), 200*time.Millisecond)
	require.Error(t, err)
}

func TestPostgresErrors(t *testing.T) {
	_, err := Postgres(context.Background(), "postgres://u:pw@%zz", 0, time.Second)
	require.ErrorContains(t, err, "parse dsn")

	_, err = Postgres(context.Background(), "postgres://u:pw@127.0.0.1:1/shop?sslmode=disable", 4, 500*time.Millisecond)
	require.Error(t, err)
	require.NotContains(t, err.Error(), "pw@")
}
