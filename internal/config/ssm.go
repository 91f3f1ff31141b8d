package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/viper"
)

// ParameterSource is the subset of the SSM client used for the overlay.
type ParameterSource interface {
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// NewSSMClient builds an SSM client from the default AWS credential chain.
func NewSSMClient(ctx context.Context, region string) (*ssm.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return ssm.NewFromConfig(cfg), nil
}

// FetchParameters reads every parameter below path, following NextToken.
// Keys are returned relative to path in config notation:
// /lightingmap/database/dsn becomes database.dsn.
func FetchParameters(ctx context.Context, src ParameterSource, path string) (map[string]string, error) {
	prefix := "/" + strings.Trim(path, "/") + "/"
	input := &ssm.GetParametersByPathInput{
		Path:           aws.String(strings.TrimSuffix(prefix, "/")),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	}

	params := map[string]string{}
	for {
		out, err := src.GetParametersByPath(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("ssm get parameters %s: %w", path, err)
		}
		for _, p := range out.Parameters {
			name := aws.ToString(p.Name)
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, prefix), "/", "."))
			params[key] = aws.ToString(p.Value)
		}
		if out.NextToken == nil {
			break
		}
		input.NextToken = out.NextToken
	}
	return params, nil
}

func overlayParameters(ctx context.Context, v *viper.Viper, src ParameterSource, path string) error {
	params, err := FetchParameters(ctx, src, path)
	if err != nil {
		return err
	}
	for key, value := range params {
		v.Set(key, value)
	}
	return nil
}
