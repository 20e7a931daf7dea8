package credentials

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// defaultAWSRegion is the fallback region when none is specified.
const defaultAWSRegion = "us-east-1"

// AWSSpec configures AWS credential materialization for the SDK clients
// (Polly, S3, STS). Requests are signed by the SDK itself, so AWS
// credentials materialize as an aws.Config rather than a Credential.
type AWSSpec struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	RoleARN         string
}

// ResolveAWS materializes an aws.Config. Static keys win over the default
// chain (IRSA, instance profiles, AWS_* environment variables, shared
// config); RoleARN layers an STS assume-role provider on top.
func ResolveAWS(ctx context.Context, spec AWSSpec) (aws.Config, error) {
	region := spec.Region
	if region == "" {
		region = defaultAWSRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if spec.AccessKeyID != "" && spec.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(spec.AccessKeyID, spec.SecretAccessKey, spec.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if spec.RoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		cfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, spec.RoleARN))
	}

	return cfg, nil
}

// VerifyAWS checks that the materialized credentials are usable by calling
// STS GetCallerIdentity. Returns the caller ARN on success.
func VerifyAWS(ctx context.Context, cfg aws.Config) (string, error) {
	out, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to verify AWS credentials: %w", err)
	}
	return aws.ToString(out.Arn), nil
}
