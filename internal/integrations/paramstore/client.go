// Package paramstore reads secrets from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// *ssm.Client satisfies ssmAPI.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("paramstore: parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// Secret binds a parameter name to the config field it fills.
type Secret struct {
	Param string
	Dst   *string
}

// Resolve fills every destination that is still empty from its parameter.
// Entries without a parameter name are skipped, so values supplied through
// the environment win.
func (c *Client) Resolve(ctx context.Context, secrets ...Secret) error {
	for _, s := range secrets {
		if s.Dst == nil || *s.Dst != "" || strings.TrimSpace(s.Param) == "" {
			continue
		}
		v, err := c.GetParameter(ctx, s.Param)
		if err != nil {
			return err
		}
		*s.Dst = v
	}
	return nil
}
