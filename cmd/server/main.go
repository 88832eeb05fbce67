package main

import (
	"context"
	"flag"
	"log"

	"github.com/amankumarsingh77/cloud-video-transcoder/internal/config"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/events"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/server"
	"github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode"
	transcodeRepository "github.com/amankumarsingh77/cloud-video-transcoder/internal/transcode/repository"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/db/aws"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/db/minio"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/db/postgres"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/db/redis"
	"github.com/amankumarsingh77/cloud-video-transcoder/pkg/logger"
	"github.com/jmoiron/sqlx"
)

func main() {
	log.Println("Starting server")
	configFile := flag.String("config", "config.yml", "path to the config file")
	flag.Parse()

	cfgFile, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("loadConfig: %v", err)
	}
	cfg, err := config.ParseConfig(cfgFile)
	if err != nil {
		log.Fatalf("parseConfig: %v", err)
	}
	appLogger := logger.NewApiLogger(cfg)
	appLogger.InitLogger()
	defer func() { _ = appLogger.Sync() }()
	appLogger.Infof("AppVersion: %s, LogLevel: %s, Mode: %s", cfg.Server.AppVersion, cfg.Logger.Level, cfg.Server.Mode)

	ctx := context.Background()

	var psqlDB *sqlx.DB
	if cfg.Postgres.Enabled {
		psqlDB, err = postgres.NewPsqlDB(cfg)
		if err != nil {
			appLogger.Fatalf("could not connect to db: %v", err)
		}
		appLogger.Infof("db connected, status: %#v", psqlDB.Stats())
		defer psqlDB.Close()
	}

	redisClient, err := redis.NewRedisClient(ctx, cfg)
	if err != nil {
		appLogger.Fatalf("could not connect to redis: %v", err)
	}
	appLogger.Infof("redis connected")
	defer redisClient.Close()

	objects, err := newObjectStore(ctx, cfg)
	if err != nil {
		appLogger.Fatalf("could not init object store: %v", err)
	}

	publisher, err := events.NewPublisher(cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("could not init event publisher: %v", err)
	}

	s := server.NewServer(cfg, psqlDB, redisClient, objects, publisher, appLogger)
	if err = s.Run(ctx); err != nil {
		appLogger.Errorf("server stopped: %v", err)
	}
}

func newObjectStore(ctx context.Context, cfg *config.Config) (transcode.ObjectStore, error) {
	if cfg.S3.Provider == "minio" {
		client, err := minio.NewMinioClient(cfg)
		if err != nil {
			return nil, err
		}
		return transcodeRepository.NewMinioRepository(client, cfg.S3.Bucket), nil
	}
	s3Client, presignClient, err := aws.NewAWSClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return transcodeRepository.NewAwsRepository(s3Client, presignClient, aws.EndpointURL(cfg), cfg.S3.Region, cfg.S3.Bucket), nil
}
