package server

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"

	"github.com/apresai/eduanim/internal/app"
	"github.com/apresai/eduanim/internal/config"
	"github.com/apresai/eduanim/internal/jobstore"
	"github.com/apresai/eduanim/internal/storage"
)

// Build connects to AWS and assembles a Server from cfg. Secrets are
// loaded before cfg is validated. baseCtx is canceled on shutdown. The
// returned close func releases the pipeline's resources.
func Build(baseCtx context.Context, cfg config.Config, version string, logger *slog.Logger) (*Server, func(), error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(baseCtx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	if cfg.SecretPrefix != "" {
		cfg.LoadSecrets(baseCtx, secretsmanager.NewFromConfig(awsCfg), logger)
	}
	if err := cfg.ValidateServer(); err != nil {
		return nil, nil, err
	}

	store := jobstore.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
	uploader := storage.NewS3(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix, cfg.CDNBaseURL, cfg.AWSRegion)

	p, closeFn, err := app.NewPipeline(baseCtx, cfg, app.Deps{Uploader: uploader, Logger: logger})
	if err != nil {
		return nil, nil, err
	}

	tasks := NewTaskManager(baseCtx, p, store, cfg.MaxTasks, cfg.Model, logger)
	srv := New(tasks, store, Options{
		Port:        cfg.Port,
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	return srv, closeFn, nil
}
