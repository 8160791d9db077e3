package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/thunder45/service-translate-sub001/internal/errs"
)

// CognitoConfig locates the user pool admins authenticate against.
type CognitoConfig struct {
	Region      string
	UserPoolID  string
	ClientID    string
	CallTimeout time.Duration
}

// CognitoProvider implements Provider on an AWS Cognito user pool using the
// USER_PASSWORD_AUTH and REFRESH_TOKEN_AUTH flows.
type CognitoProvider struct {
	client   *cip.Client
	clientID string
	timeout  time.Duration
}

func NewCognitoProvider(ctx context.Context, cfg CognitoConfig) (*CognitoProvider, error) {
	if cfg.ClientID == "" || cfg.Region == "" {
		return nil, fmt.Errorf("cognito region and client id are required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &CognitoProvider{
		client:   cip.NewFromConfig(awsCfg),
		clientID: cfg.ClientID,
		timeout:  cfg.CallTimeout,
	}, nil
}

func (p *CognitoProvider) AuthenticateWithPassword(ctx context.Context, username, password string) (TokenBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: ciptypes.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(p.clientID),
		AuthParameters: map[string]string{
			"USERNAME": username,
			"PASSWORD": password,
		},
	})
	if err != nil {
		return TokenBundle{}, classifyAuthError(err)
	}
	if out.AuthenticationResult == nil {
		return TokenBundle{}, errs.New(errs.AuthInvalidCredentials, "authentication challenge not supported")
	}
	return bundleFromResult(out.AuthenticationResult), nil
}

func (p *CognitoProvider) ValidateToken(ctx context.Context, accessToken string) (UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.client.GetUser(ctx, &cip.GetUserInput{AccessToken: aws.String(accessToken)})
	if err != nil {
		return UserInfo{}, classifyTokenError(err)
	}

	info := UserInfo{Username: aws.ToString(out.Username)}
	for _, attr := range out.UserAttributes {
		switch aws.ToString(attr.Name) {
		case "sub":
			info.AdminID = aws.ToString(attr.Value)
		case "email":
			info.Email = aws.ToString(attr.Value)
		case "name", "preferred_username":
			if info.DisplayName == "" {
				info.DisplayName = aws.ToString(attr.Value)
			}
		}
	}
	if info.AdminID == "" {
		return UserInfo{}, errs.New(errs.AuthTokenInvalid, "token has no subject")
	}
	if info.DisplayName == "" {
		info.DisplayName = info.Username
	}
	return info, nil
}

func (p *CognitoProvider) Refresh(ctx context.Context, refreshToken string) (TokenBundle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: ciptypes.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(p.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		return TokenBundle{}, classifyRefreshError(err)
	}
	if out.AuthenticationResult == nil {
		return TokenBundle{}, errs.New(errs.AuthRefreshInvalid, "refresh produced no tokens")
	}
	return bundleFromResult(out.AuthenticationResult), nil
}

func bundleFromResult(res *ciptypes.AuthenticationResultType) TokenBundle {
	return TokenBundle{
		AccessToken:  aws.ToString(res.AccessToken),
		IDToken:      aws.ToString(res.IdToken),
		RefreshToken: aws.ToString(res.RefreshToken),
		ExpiresIn:    int64(res.ExpiresIn),
	}
}

func classifyAuthError(err error) error {
	var notAuth *ciptypes.NotAuthorizedException
	var notFound *ciptypes.UserNotFoundException
	var notConfirmed *ciptypes.UserNotConfirmedException
	var tooMany *ciptypes.TooManyRequestsException
	switch {
	case errors.As(err, &notAuth):
		return errs.Wrap(errs.AuthInvalidCredentials, "invalid credentials", err)
	case errors.As(err, &notFound):
		return errs.Wrap(errs.CognitoUserNotFound, "user not found", err)
	case errors.As(err, &notConfirmed):
		return errs.Wrap(errs.CognitoUserDisabled, "user not confirmed", err)
	case errors.As(err, &tooMany):
		return errs.Wrap(errs.CognitoQuotaExceeded, "identity provider throttled", err).WithRetryAfter(30 * time.Second)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.CognitoUnavailable, "identity provider timed out", err)
	default:
		return errs.Wrap(errs.CognitoUnavailable, "identity provider error", err)
	}
}

func classifyTokenError(err error) error {
	var notAuth *ciptypes.NotAuthorizedException
	switch {
	case errors.As(err, &notAuth):
		// Cognito reports expired and revoked access tokens the same way.
		return errs.Wrap(errs.AuthTokenExpired, "access token rejected", err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.CognitoUnavailable, "identity provider timed out", err)
	default:
		return errs.Wrap(errs.CognitoUnavailable, "identity provider error", err)
	}
}

func classifyRefreshError(err error) error {
	var notAuth *ciptypes.NotAuthorizedException
	switch {
	case errors.As(err, &notAuth):
		return errs.Wrap(errs.AuthRefreshExpired, "refresh token rejected", err)
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(errs.CognitoUnavailable, "identity provider timed out", err)
	default:
		return errs.Wrap(errs.CognitoUnavailable, "identity provider error", err)
	}
}
