// Package app wires configuration, AWS clients and integrations into a
// ready Handler. Both the Lambda and the local server start from here.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"vectorizer/handler"
	"vectorizer/internal/config"
	"vectorizer/internal/integrations/paramstore"
	"vectorizer/internal/integrations/payments"
	"vectorizer/internal/integrations/vectorizer"
	"vectorizer/internal/logging"
	"vectorizer/internal/repository"
	"vectorizer/internal/storage"
	"vectorizer/internal/usecase"
)

const (
	vectorizerKeyParam = "/vectorizer-api-key"
	stripeKeyParam     = "/stripe-secret-key"
)

// LoadAWSConfig resolves the shared AWS configuration. Static credentials
// are used only when both halves are set.
func LoadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("app: load aws config: %w", err)
	}
	return awsCfg, nil
}

// Build constructs the Handler. Missing secrets or storage settings are not
// an error here; the endpoints that need them report it per request.
func Build(ctx context.Context, cfg config.Config) (*handler.Handler, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var params paramstore.Getter
	if cfg.ParamPrefix != "" {
		ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: create parameter store client: %w", err)
		}
		params = ps
	}
	vectorizerKey := paramstore.NewSecret(cfg.VectorizerAPIKey, params, paramName(cfg.ParamPrefix, vectorizerKeyParam))
	stripeKey := paramstore.NewSecret(cfg.StripeSecretKey, params, paramName(cfg.ParamPrefix, stripeKeyParam))

	vc, err := vectorizer.NewClient(vectorizerKey, vectorizer.WithEndpoint(cfg.VectorizerURL))
	if err != nil {
		return nil, fmt.Errorf("app: create vectorizer client: %w", err)
	}
	pc, err := payments.NewClient(stripeKey)
	if err != nil {
		return nil, fmt.Errorf("app: create payments client: %w", err)
	}
	store, err := storage.NewFromClient(awss3.NewFromConfig(awsCfg), cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("app: create storage: %w", err)
	}

	var entitlements usecase.EntitlementStore
	if cfg.EntitlementsTable != "" {
		repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.EntitlementsTable)
		if err != nil {
			return nil, fmt.Errorf("app: create entitlement repository: %w", err)
		}
		entitlements = repo
	} else {
		logging.Warn("ENTITLEMENTS_TABLE not set; entitlement endpoints are disabled")
	}

	vs, err := usecase.NewVectorizeService(vc, store, cfg.ResultMode, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("app: create vectorize service: %w", err)
	}
	cs, err := usecase.NewCheckoutService(pc)
	if err != nil {
		return nil, fmt.Errorf("app: create checkout service: %w", err)
	}
	es, err := usecase.NewEntitlementService(pc, entitlements, store)
	if err != nil {
		return nil, fmt.Errorf("app: create entitlement service: %w", err)
	}

	h, err := handler.NewHandler(vs, cs, es, handler.WithBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("app: create handler: %w", err)
	}

	logging.Info("service configured",
		"resultMode", vs.Mode(),
		"maxUploadBytes", cfg.MaxUploadBytes,
		"bucketSet", cfg.BucketName != "",
		"paramPrefixSet", cfg.ParamPrefix != "",
	)
	return h, nil
}

func paramName(prefix, suffix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + suffix
}
