// Command fit-storage drives the storage backend's bucket lifecycle
// and moves data in and out of it: create-bucket, wait (for the
// bucket to become reachable), upload, download, and list.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		prefix    string
		timeoutMs int
	)

	rootCmd := &cobra.Command{
		Use:          "fit-storage",
		Short:        "Manage the fit storage backend's bucket and objects",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&prefix, "prefix", "", "storage prefix this backend instance is scoped to")
	rootCmd.PersistentFlags().IntVar(&timeoutMs, "timeout", 30000, "operation timeout in milliseconds")

	openBackend := func(ctx context.Context) (storage.Backend, error) {
		return storage.New(ctx, storageConfigFromEnv(), prefix)
	}
	withTimeout := func(ctx context.Context) (context.Context, context.CancelFunc) {
		return context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	}

	rootCmd.AddCommand(
		buildCreateBucketCmd(openBackend, withTimeout),
		buildWaitCmd(openBackend, withTimeout),
		buildUploadCmd(openBackend, withTimeout),
		buildDownloadCmd(openBackend, withTimeout),
		buildListCmd(openBackend, withTimeout),
	)
	return rootCmd
}

type backendFactory func(ctx context.Context) (storage.Backend, error)
type timeoutFactory func(ctx context.Context) (context.Context, context.CancelFunc)

func buildCreateBucketCmd(openBackend backendFactory, withTimeout timeoutFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "create-bucket",
		Short: "Create the backend's bucket if it does not already exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			backend, err := openBackend(ctx)
			if err != nil {
				return err
			}
			if err := backend.EnsureBucket(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "bucket ready")
			return nil
		},
	}
}

// buildWaitCmd polls BucketExists until it reports true or the
// timeout elapses, for deployment scripts that must not proceed until
// storage is reachable.
func buildWaitCmd(openBackend backendFactory, withTimeout timeoutFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "wait",
		Short: "Block until the backend's bucket exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			backend, err := openBackend(ctx)
			if err != nil {
				return err
			}

			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				exists, err := backend.BucketExists(ctx)
				if err == nil && exists {
					fmt.Fprintln(cmd.OutOrStdout(), "bucket reachable")
					return nil
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("bucket not reachable after %s: %w", ctx.Err(), ctx.Err())
				case <-ticker.C:
				}
			}
		},
	}
}

func buildUploadCmd(openBackend backendFactory, withTimeout timeoutFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <key> <local-path>",
		Short: "Upload a local file's bytes to key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, localPath := args[0], args[1]
			data, err := os.ReadFile(localPath)
			if err != nil {
				return fmt.Errorf("read %s: %w", localPath, err)
			}

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			backend, err := openBackend(ctx)
			if err != nil {
				return err
			}
			if err := backend.Put(ctx, key, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s -> %s\n", localPath, key)
			return nil
		},
	}
}

func buildDownloadCmd(openBackend backendFactory, withTimeout timeoutFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "download <key> <local-path>",
		Short: "Download key's bytes to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, localPath := args[0], args[1]

			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			backend, err := openBackend(ctx)
			if err != nil {
				return err
			}
			var data []byte
			if err := backend.Get(ctx, key, &data); err != nil {
				return err
			}
			if err := os.WriteFile(localPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", localPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloaded %s -> %s\n", key, localPath)
			return nil
		},
	}
}

func buildListCmd(openBackend backendFactory, withTimeout timeoutFactory) *cobra.Command {
	var delim string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys under the configured prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd.Context())
			defer cancel()
			backend, err := openBackend(ctx)
			if err != nil {
				return err
			}

			var keys []string
			if delim != "" {
				keys, err = backend.FindByPrefix(ctx, "", delim)
			} else {
				keys, err = backend.List(ctx)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintln(out, k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&delim, "delimiter", "", "group keys by next-path-segment under this delimiter instead of listing every key")
	return cmd
}

func storageConfigFromEnv() storage.Config {
	return storage.Config{
		Type:            storage.Type(envOr("STORAGE_TYPE", string(storage.Local))),
		Root:            envOr("STORAGE_ROOT", "./data"),
		Bucket:          os.Getenv("S3_BUCKET_NAME"),
		Region:          os.Getenv("S3_REGION"),
		Endpoint:        os.Getenv("AWS_ENDPOINT_URL"),
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		RoleARN:         os.Getenv("S3_BUCKET_ROLE_ARN"),
		ServiceRoleKey:  os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
