// Package main provides the Lambda handler entry point for churchbridge.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/peteski22/churchbridge/internal/config"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: settings.LogLevel,
	}))
	slog.SetDefault(logger)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		logger.Error("loading AWS config", "error", err)
		os.Exit(1)
	}

	h := &handler{
		logger:   logger,
		secrets:  secretsmanager.NewFromConfig(awsCfg),
		settings: settings,
		ssm:      ssm.NewFromConfig(awsCfg),
	}
	if settings.DynamoDB.TableName != "" {
		h.dynamo = dynamodb.NewFromConfig(awsCfg)
	}

	lambda.Start(h.handle)
}
