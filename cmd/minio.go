package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"soundvault/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/cobra"
)

var (
	minioPrefix string
	minioStats  bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO bucket",
	Long:  `Lists objects in the configured MinIO bucket, optionally filtered by prefix, or prints aggregate statistics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: cfg.MinioUseSSL,
			Region: cfg.MinioRegion,
		})
		if err != nil {
			log.Fatalf("Failed to create MinIO client: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		objectCh := client.ListObjects(ctx, cfg.MinioBucket, minio.ListObjectsOptions{
			Prefix:    minioPrefix,
			Recursive: true,
		})

		var count, totalSize int64
		for object := range objectCh {
			if object.Err != nil {
				log.Fatalf("Failed to list objects: %v", object.Err)
			}
			count++
			totalSize += object.Size
			if !minioStats {
				fmt.Printf("%-60s %12d  %s\n", object.Key, object.Size, object.LastModified.Format(time.RFC3339))
			}
		}

		if minioStats {
			fmt.Printf("Objects: %d\nTotal size: %d bytes\n", count, totalSize)
		}
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "filter objects by prefix, e.g. \"audio/\"")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "print aggregate statistics instead of a listing")

	minioCmd.Example = `  # List all objects
  soundvault minio

  # List only audio blobs
  soundvault minio -p "audio/"

  # Bucket statistics
  soundvault minio -s`
}
