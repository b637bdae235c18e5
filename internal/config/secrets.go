package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"

	"github.com/dropDatabas3/hellojohn-oidc/internal/observability/logger"
)

// LoadEnv carga el secreto de AWS Secrets Manager (si HJ_AWS_SECRET_ID está
// seteado) y después el .env. Ninguno pisa variables ya presentes.
func LoadEnv() {
	log := logger.L().With(logger.Component("config"))
	if err := loadAWSSecretsIntoEnv(context.Background()); err != nil {
		log.Warn("skipping aws secrets manager", logger.Err(err))
	}

	envFile := os.Getenv(EnvPrefix + "ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to load env file", logger.String("path", envFile), logger.Err(err))
	}
}

// secretGetter es la parte del cliente de Secrets Manager que usamos.
type secretGetter interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func loadAWSSecretsIntoEnv(ctx context.Context) error {
	secretID := os.Getenv(EnvPrefix + "AWS_SECRET_ID")
	if secretID == "" {
		return nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region := os.Getenv(EnvPrefix + "AWS_REGION"); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("aws config: %w", err)
	}
	overwrite := strings.EqualFold(os.Getenv(EnvPrefix+"AWS_SECRET_OVERWRITE"), "true")
	n, err := applySecret(ctx, secretsmanager.NewFromConfig(cfg), secretID, overwrite)
	if err != nil {
		return err
	}
	logger.L().Info("env loaded from aws secrets manager",
		logger.Component("config"), logger.String("secret_id", secretID), logger.Count(n))
	return nil
}

// applySecret exporta al entorno cada par key/value del secreto JSON.
func applySecret(ctx context.Context, sm secretGetter, secretID string, overwrite bool) (int, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return 0, fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var payload []byte
	switch {
	case out.SecretString != nil:
		payload = []byte(*out.SecretString)
	case len(out.SecretBinary) > 0:
		payload = out.SecretBinary
	default:
		return 0, fmt.Errorf("secret %s has no payload", secretID)
	}

	var kv map[string]any
	if err := json.Unmarshal(payload, &kv); err != nil {
		return 0, fmt.Errorf("parsing secret %s as JSON: %w", secretID, err)
	}
	applied := 0
	for key, val := range kv {
		if !overwrite && os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return applied, fmt.Errorf("setting env %s from secret: %w", key, err)
		}
		applied++
	}
	return applied, nil
}
