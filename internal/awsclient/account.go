package awsclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// CallerIdentityAPI is the slice of STS used to resolve the account.
type CallerIdentityAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// AccountID returns the account behind the client's credentials.
func AccountID(ctx context.Context, client CallerIdentityAPI) (string, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}

	id := aws.ToString(out.Account)
	if id == "" {
		return "", errors.New("get caller identity: empty account")
	}
	return id, nil
}

// NewStrategy selects a strategy by name. base supplies the ambient
// credentials for the shared STS client used by assume-role.
func NewStrategy(name, roleARN, externalID string, base aws.Config) (Strategy, error) {
	switch name {
	case "", StrategyLocal:
		return Local{}, nil
	case StrategyAssumeRole:
		if roleARN == "" {
			return nil, errors.New("assume-role strategy requires a role arn")
		}
		return NewAssumeRole(sts.NewFromConfig(base), roleARN, externalID), nil
	default:
		return nil, fmt.Errorf("unknown credential strategy %q", name)
	}
}
