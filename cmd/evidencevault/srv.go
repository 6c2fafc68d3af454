package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"evidencevault/internal/blobstore"
	"evidencevault/internal/config"
	"evidencevault/internal/evidence"
	"evidencevault/internal/integrity"
	"evidencevault/internal/notify"
	"evidencevault/internal/server"
	"evidencevault/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the evidencevault API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			blobs, err := openBlobStore(ctx, cfg, logger)
			if err != nil {
				return err
			}

			alg, err := integrity.ParseAlgorithm(cfg.Storage.HashAlgorithm)
			if err != nil {
				return err
			}
			hasher, err := integrity.NewHasher(alg)
			if err != nil {
				return err
			}

			opts := []evidence.Option{
				evidence.WithLogger(slog.Default()),
				evidence.WithUploadPolicy(cfg.Policy.EnforceUpload),
				evidence.WithPurgeBatch(cfg.Storage.PurgeBatchSize),
			}
			if cfg.NATS.URL != "" {
				pub, err := notify.NewNATSPublisher(notify.NATSOptions{
					URL:           cfg.NATS.URL,
					SubjectPrefix: cfg.NATS.SubjectPrefix,
					Stream:        cfg.NATS.Stream,
					ClientName:    "evidencevault",
				}, slog.Default())
				if err != nil {
					return fmt.Errorf("connect notifications: %w", err)
				}
				defer pub.Close()
				opts = append(opts, evidence.WithPublisher(pub))
			}

			svc := evidence.NewService(st, blobs, hasher, opts...)
			if every := cfg.PurgeEvery(); every > 0 {
				go runPurgeSweeper(ctx, svc, every, slog.Default().With("component", "sweeper"))
			}

			srv := server.New(addr, svc, healthChecks{st, blobs}, logger)
			srv.Configure(server.Options{
				MaxUploadBytes:     cfg.Storage.MaxUploadBytes,
				MultipartMaxMemory: cfg.Storage.MultipartMaxMemory,
			})
			return srv.ListenAndServe(ctx)
		},
	}
}

func openBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blobstore.BlobStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendMinio:
		logger.Info("using minio blob store", "endpoint", cfg.Minio.Endpoint, "bucket", cfg.Minio.Bucket)
		return blobstore.NewMinioStore(ctx, blobstore.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		}, slog.Default())
	default:
		logger.Info("using local blob store", "root", cfg.Storage.Root)
		return blobstore.NewLocalStore(cfg.Storage.Root)
	}
}

// runPurgeSweeper retries byte removal for deleted items until ctx ends.
func runPurgeSweeper(ctx context.Context, svc *evidence.Service, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := svc.SweepPurges(ctx, 0, true)
			if err != nil {
				logger.Error("purge sweep failed", "error", err)
				continue
			}
			if result.CandidateCount > 0 {
				logger.Info("purge sweep",
					"candidates", result.CandidateCount,
					"purged", result.PurgedCount,
					"failed", result.FailedCount,
					"reclaimed_bytes", result.ReclaimedBytes,
				)
			}
		}
	}
}

// healthChecks pings the metadata store and, when it supports it, the blob backend.
type healthChecks struct {
	db    server.Pinger
	blobs blobstore.BlobStore
}

func (h healthChecks) Ping(ctx context.Context) error {
	if err := h.db.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c, ok := h.blobs.(interface{ CheckConnection(context.Context) error }); ok {
		if err := c.CheckConnection(ctx); err != nil {
			return fmt.Errorf("blob storage: %w", err)
		}
	}
	return nil
}
