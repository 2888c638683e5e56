package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/yairfalse/kartta/internal/discovery"
)

// LambdaModule discovers functions.
type LambdaModule struct {
	module
	client func(aws.Config) LambdaAPI
}

// NewLambdaModule creates the Lambda module.
func NewLambdaModule() *LambdaModule {
	return &LambdaModule{
		module: module{service: "lambda"},
		client: func(cfg aws.Config) LambdaAPI { return lambda.NewFromConfig(cfg) },
	}
}

// Discover implements discovery.Module.
func (m *LambdaModule) Discover(ctx context.Context, req *discovery.Request) error {
	cfg, err := req.Config(ctx)
	if err != nil {
		return err
	}
	client := m.client(cfg)

	var marker *string
	for {
		output, err := client.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return listErr("list functions", err)
		}

		for _, fn := range output.Functions {
			name := aws.ToString(fn.FunctionName)
			b := req.NewBuilder(aws.ToString(fn.FunctionArn)).
				WithResourceID(name).
				WithResourceName(name).
				WithConfiguration(fn).
				WithSizeInBytes(fn.CodeSize)

			err := publish(ctx, req, item{
				builder: b,
				typ:     "AWS::Lambda::Function",
				lookups: functionLookups(client, name),
				tags:    []string{m.tag("function")},
			})
			if err != nil {
				return err
			}
		}

		if aws.ToString(output.NextMarker) == "" {
			return nil
		}
		marker = output.NextMarker
	}
}

func functionLookups(client LambdaAPI, name string) []discovery.Lookup {
	fn := aws.String(name)
	return []discovery.Lookup{
		{Key: "functionEventInvokeConfigs", Fetch: pages(func(ctx context.Context, marker *string) ([]lambdatypes.FunctionEventInvokeConfig, *string, error) {
			out, err := client.ListFunctionEventInvokeConfigs(ctx, &lambda.ListFunctionEventInvokeConfigsInput{FunctionName: fn, Marker: marker})
			if err != nil {
				return nil, nil, err
			}
			return out.FunctionEventInvokeConfigs, out.NextMarker, nil
		})},
		{Key: "eventSourceMapping", Fetch: pages(func(ctx context.Context, marker *string) ([]lambdatypes.EventSourceMappingConfiguration, *string, error) {
			out, err := client.ListEventSourceMappings(ctx, &lambda.ListEventSourceMappingsInput{FunctionName: fn, Marker: marker})
			if err != nil {
				return nil, nil, err
			}
			return out.EventSourceMappings, out.NextMarker, nil
		})},
		{Key: "function", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: fn})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"code":        out.Code,
				"concurrency": out.Concurrency,
				"tags":        out.Tags,
			}, nil
		}},
		{Key: "functionInvokeConfig", Fetch: func(ctx context.Context) (any, error) {
			out, err := client.GetFunctionEventInvokeConfig(ctx, &lambda.GetFunctionEventInvokeConfigInput{FunctionName: fn})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"destinationConfig":        out.DestinationConfig,
				"maximumEventAgeInSeconds": out.MaximumEventAgeInSeconds,
				"maximumRetryAttempts":     out.MaximumRetryAttempts,
			}, nil
		}},
		{Key: "accessPolicy", Fetch: discovery.Call(func(ctx context.Context) (*string, error) {
			out, err := client.GetPolicy(ctx, &lambda.GetPolicyInput{FunctionName: fn})
			if err != nil {
				return nil, err
			}
			return out.Policy, nil
		})},
	}
}
