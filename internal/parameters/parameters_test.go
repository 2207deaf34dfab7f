package parameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromConfigString(t *testing.T) {
	params := NewFromConfigString("zoom, gauss_noise=20;60,,rotation=false,name=a=b")
	assert.Equal(t, Params{"zoom": "", "gauss_noise": "20;60", "rotation": "false", "name": "a=b"}, params)
}

func TestGetParamOr(t *testing.T) {
	params := NewFromConfigString("flag,n=3,lr=0.5,off=0,s=hello,empty=")

	b, err := GetParamOr(params, "flag", false)
	require.NoError(t, err)
	assert.True(t, b)
	b, err = GetParamOr(params, "off", true)
	require.NoError(t, err)
	assert.False(t, b)

	n, err := GetParamOr(params, "n", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = GetParamOr(params, "empty", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	lr, err := GetParamOr(params, "lr", float32(0.1))
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), lr)

	s, err := GetParamOr(params, "s", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	missing, err := GetParamOr(params, "missing", 42.0)
	require.NoError(t, err)
	assert.Equal(t, 42.0, missing)

	_, err = GetParamOr(params, "s", 1)
	require.Error(t, err)
	_, err = GetParamOr(params, "s", false)
	require.Error(t, err)
}

func TestPopParamOr_CheckEmpty(t *testing.T) {
	params := NewFromConfigString("a=1,b")
	a, err := PopParamOr(params, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, a)
	require.EqualError(t, CheckEmpty(params), "unknown configuration keys: b")
	_, err = PopParamOr(params, "b", false)
	require.NoError(t, err)
	require.NoError(t, CheckEmpty(params))
}

func TestPopFloatsOr(t *testing.T) {
	params := NewFromConfigString("noise=20;60,blur,off=false,bad=1;x")
	v, ok, err := PopFloatsOr(params, "noise", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{20, 60}, v)

	v, ok, err = PopFloatsOr(params, "blur", []float64{1, 2})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 2}, v)

	_, ok, err = PopFloatsOr(params, "off", []float64{1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = PopFloatsOr(params, "absent", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = PopFloatsOr(params, "bad", nil)
	require.Error(t, err)
	assert.Empty(t, params)
}
