package test

import (
	"context"
	"fmt"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	imageName = "redis"
	imageTag  = "7.2-alpine"

	containerAutoKill = 120 * time.Second
)

func StartRedis(pool *dockertest.Pool) (client *redis.Client, teardown func(), err error) {
	teardown = func() {}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: imageName,
		Tag:        imageTag,
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		return nil, teardown, fmt.Errorf("failed to start redis: %w", err)
	}

	_ = resource.Expire(uint(containerAutoKill.Seconds()))

	log := logrus.StandardLogger().WithField("method", "StartRedis")

	client = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("localhost:%s", resource.GetPort("6379/tcp")),
	})

	teardown = func() {
		client.Close()
		if err := pool.Purge(resource); err != nil {
			log.WithError(err).Errorf("failed to cleanup redis resource")
		}
	}

	err = pool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return client.Ping(ctx).Err()
	})
	if err != nil {
		return nil, teardown, fmt.Errorf("failed waiting for stable connection: %w", err)
	}

	return client, teardown, nil
}
