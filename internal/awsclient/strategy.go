// Package awsclient builds AWS configurations per region under a credential
// strategy.
package awsclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
)

// Strategy names accepted by configuration.
const (
	StrategyLocal      = "local"
	StrategyAssumeRole = "assume-role"
)

// SessionNamePrefix starts every role session name.
const SessionNamePrefix = "kartta-"

// Strategy decides how a regional configuration gets its credentials.
type Strategy interface {
	Name() string

	// LoadOptions are appended after region, profile and transport.
	LoadOptions() []func(*config.LoadOptions) error

	// Verify runs once per regional configuration, on first use.
	Verify(ctx context.Context, cfg aws.Config) error
}

// Local uses the ambient credential chain.
type Local struct{}

func (Local) Name() string { return StrategyLocal }

func (Local) LoadOptions() []func(*config.LoadOptions) error { return nil }

func (Local) Verify(context.Context, aws.Config) error { return nil }

// AssumeRole exchanges the ambient credentials for a role in another account.
// One instance, with one STS client and one credential cache, serves a whole
// scan.
type AssumeRole struct {
	roleARN    string
	externalID string
	provider   *stscreds.AssumeRoleProvider
	cache      *aws.CredentialsCache
}

// NewAssumeRole builds the strategy around a shared STS client. Nothing is
// called until the first regional configuration is used.
func NewAssumeRole(client stscreds.AssumeRoleAPIClient, roleARN, externalID string) *AssumeRole {
	provider := stscreds.NewAssumeRoleProvider(
		&sessionNamer{api: client},
		roleARN,
		func(o *stscreds.AssumeRoleOptions) {
			if externalID != "" {
				o.ExternalID = aws.String(externalID)
			}
		},
	)

	return &AssumeRole{
		roleARN:    roleARN,
		externalID: externalID,
		provider:   provider,
		cache:      aws.NewCredentialsCache(provider),
	}
}

func (a *AssumeRole) Name() string { return StrategyAssumeRole }

// RoleARN is the target role.
func (a *AssumeRole) RoleARN() string { return a.roleARN }

func (a *AssumeRole) LoadOptions() []func(*config.LoadOptions) error {
	return []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(a.cache),
	}
}

// Verify rejects malformed role ARNs and makes sure a role session can be
// obtained, so failures never degrade into unsigned requests.
func (a *AssumeRole) Verify(ctx context.Context, _ aws.Config) error {
	parsed, err := arn.Parse(a.roleARN)
	if err != nil {
		return fmt.Errorf("invalid role arn %q: %w", a.roleARN, err)
	}
	if parsed.Service != "iam" {
		return fmt.Errorf("invalid role arn %q: not an iam arn", a.roleARN)
	}

	creds, err := a.cache.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("assume role %s: %w", a.roleARN, err)
	}
	if !creds.HasKeys() {
		return errors.New("assume role returned empty credentials")
	}
	return nil
}

// sessionNamer gives every AssumeRole call its own session name.
type sessionNamer struct {
	api stscreds.AssumeRoleAPIClient
}

func (s *sessionNamer) AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	params := *in
	params.RoleSessionName = aws.String(SessionNamePrefix + uuid.NewString())
	return s.api.AssumeRole(ctx, &params, optFns...)
}
