package storage

import (
	"SiteSign/storage/database"
	"SiteSign/storage/mq"
	"SiteSign/storage/redis"
)

// Init connects every backing store used by the server-side binaries.
func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		return err
	}

	if err := mq.Init(); err != nil {
		return err
	}

	return nil
}
