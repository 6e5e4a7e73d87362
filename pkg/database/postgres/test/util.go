package test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v4/stdlib" //nolint:revive
)

const (
	imageName = "postgres"
	imageTag  = "15-alpine"

	containerAutoKill = 120 * time.Second

	user     = "localtest"
	password = "localpassword"
	dbname   = "testdb"
)

// StartPostgresDB runs a throwaway postgres container and returns a client
// connected to it once it accepts connections.
func StartPostgresDB(pool *dockertest.Pool) (db *sql.DB, teardown func(), err error) {
	teardown = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: imageName,
		Tag:        imageTag,
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbname,
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, teardown, errors.Wrap(err, "failed to start postgres")
	}

	// Expire never returns an error
	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	log := logrus.StandardLogger().WithField("method", "StartPostgresDB")

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s/%s?sslmode=disable",
		user,
		password,
		resource.GetHostPort("5432/tcp"),
		dbname,
	)

	db, err = sql.Open("pgx", dsn)
	if err != nil {
		return nil, teardown, errors.Wrap(err, "failed to open postgres client")
	}

	teardown = func() {
		db.Close()
		if err := pool.Purge(resource); err != nil {
			log.WithError(err).Error("failed to cleanup postgres resource")
		}
	}

	pool.MaxWait = time.Minute
	if err := pool.Retry(db.Ping); err != nil {
		return nil, teardown, errors.Wrap(err, "timed out waiting for postgres to become available")
	}

	return db, teardown, nil
}
