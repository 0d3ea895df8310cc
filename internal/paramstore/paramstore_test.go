package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	in     *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.in = in
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func secureParam(value string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("/moodpipe/sentiment-key"), Value: strPtr(value), Type: types.ParameterTypeSecureString,
	}}
}

func TestGetParameter_Decrypts(t *testing.T) {
	api := &fakeAPI{getOut: secureParam("s3cret")}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /moodpipe/sentiment-key ")
	require.NoError(t, err)
	require.Equal(t, "s3cret", v)
	require.Equal(t, "/moodpipe/sentiment-key", *api.in.Name)
	require.True(t, *api.in.WithDecryption)
}

func TestGetParameter_Errors(t *testing.T) {
	client, err := New(&fakeAPI{getErr: errors.New("AccessDenied")})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "AccessDenied")

	client, err = New(&fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}})
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")

	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	_, err = (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestResolve(t *testing.T) {
	client, err := New(&fakeAPI{getOut: secureParam("from-ssm")})
	require.NoError(t, err)
	ctx := context.Background()

	v, err := Resolve(ctx, client, "inline", "/moodpipe/sentiment-key")
	require.NoError(t, err)
	require.Equal(t, "inline", v)

	v, err = Resolve(ctx, client, "", "/moodpipe/sentiment-key")
	require.NoError(t, err)
	require.Equal(t, "from-ssm", v)

	v, err = Resolve(ctx, nil, "", "")
	require.NoError(t, err)
	require.Empty(t, v)

	_, err = Resolve(ctx, nil, "", "/moodpipe/sentiment-key")
	require.Error(t, err)
}
