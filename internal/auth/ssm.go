package auth

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

// ssmParameterGetter is the subset of the SSM API used to read the credential.
type ssmParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSM reads a session token from a SecureString parameter.
type SSM struct {
	client ssmParameterGetter
	param  string
}

func NewSSM(client *ssm.Client, param string) *SSM {
	s := &SSM{param: param}
	if client != nil {
		s.client = client
	}
	return s
}

func (s *SSM) Credential(ctx context.Context) (string, error) {
	if s.client == nil {
		return "", xerrors.New("ssm client is not configured")
	}
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", s.param)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", s.param)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", s.param)
	}
	return Cookie(v), nil
}
