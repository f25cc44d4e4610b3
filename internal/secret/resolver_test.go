package secret

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSMClient struct {
	params map[string]string
}

func (f *fakeSSMClient) GetParameter(_ context.Context, input *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	val, ok := f.params[*input.Name]
	if !ok {
		return nil, fmt.Errorf("parameter not found: %s", *input.Name)
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:  input.Name,
			Value: aws.String(val),
		},
	}, nil
}

func TestSSMResolver_GetSecret(t *testing.T) {
	client := &fakeSSMClient{
		params: map[string]string{
			"/skyvault/jwt-secret": "super-secret-value",
		},
	}
	resolver := NewSSMResolver(client)

	val, err := resolver.GetSecret(context.Background(), "/skyvault/jwt-secret")
	require.NoError(t, err)
	require.Equal(t, "super-secret-value", val)

	_, err = resolver.GetSecret(context.Background(), "/skyvault/nonexistent")
	require.Error(t, err)
}

func TestEnvResolver_GetSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret-value")
	resolver := NewEnvResolver()

	val, err := resolver.GetSecret(context.Background(), "/skyvault/jwt-secret")
	require.NoError(t, err)
	require.Equal(t, "env-secret-value", val)

	_, err = resolver.GetSecret(context.Background(), "/skyvault/nonexistent-secret")
	require.Error(t, err)
}

func TestParamNameToEnvVar(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/skyvault/jwt-secret", "JWT_SECRET"},
		{"/skyvault/api-gateway-secret", "API_GATEWAY_SECRET"},
		{"plain-name", "PLAIN_NAME"},
	}

	for _, tc := range tests {
		require.Equal(t, tc.expected, paramNameToEnvVar(tc.input), "input %q", tc.input)
	}
}
