package models

import (
	"context"
	"fmt"
	"github.com/go-redis/redis/v7"
	"github.com/sparktest/orchestrator/common/helpers"
	"log"
)

func SetupRedis(config *helpers.Config) (*redis.Client, error) {
	log.Printf("INFO SetupRedis connecting to Redis on %s", config.Redis.Address)
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Address,
		Password: config.Redis.Password,
		DB:       config.Redis.DBNum,
	})

	_, err := client.Ping().Result()
	if err != nil {
		log.Printf("ERROR SetupRedis could not contact Redis: %s", err)
		client.Close()
		return nil, err
	}
	log.Printf("INFO SetupRedis done.")
	return client, nil
}

/**
connect to whichever store backend the config asks for. The returned function closes the connection
*/
func OpenRunStore(ctx context.Context, config *helpers.Config) (RunStore, func() error, error) {
	switch config.Store.Backend {
	case "", "redis":
		client, err := SetupRedis(config)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisRunStore(client), client.Close, nil
	case "postgres":
		log.Printf("INFO OpenRunStore connecting to postgres")
		store, err := OpenPostgresRunStore(ctx, config.Store.PostgresUrl, config.Store.MaxOpenConns)
		if err != nil {
			log.Printf("ERROR OpenRunStore could not contact postgres: %s", err)
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend '%s'", config.Store.Backend)
	}
}
