package cmd

import (
	"bytes"
	"context"
	"fmt"
	"log"

	"soundvault/config"
	"soundvault/db"
	"soundvault/kv"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Test the Redis connection",
	Long:  `Verifies connectivity to Redis and runs a put/get/delete roundtrip through the record store.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Connecting to Redis...")

		cfg := config.Load()
		fmt.Printf("Redis config: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		client, err := db.ConnectRedis(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer client.Close()
		fmt.Println("Redis connection successful!")

		store := kv.NewRedisStore(client)
		ctx := context.Background()

		const testKey = "soundvault:connection_test"
		want := []byte("roundtrip ok")

		if err := store.Put(ctx, testKey, want); err != nil {
			log.Fatalf("Put failed: %v", err)
		}
		got, err := store.Get(ctx, testKey)
		if err != nil {
			log.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			log.Fatalf("Roundtrip mismatch: got %q, want %q", got, want)
		}
		if err := store.Delete(ctx, testKey); err != nil {
			log.Fatalf("Delete failed: %v", err)
		}

		fmt.Println("Redis roundtrip successful, connection closed.")
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
