package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampJitter(t *testing.T) {
	assert.Equal(t, 3.0, clamp(3, 10))
	assert.Equal(t, 9.0, clamp(50, 10))
	assert.Equal(t, -9.0, clamp(-50, 10))
	assert.Equal(t, 0.0, clamp(5, 0.5))
}

func TestCookieParams(t *testing.T) {
	params := cookieParams([]chromeCookie{
		{Name: "hf_session", Value: "abc", Domain: "hogflix.test", Path: "/", Expires: 1893456000, Secure: true},
		{Name: "ph_anon", Value: "x", Domain: "hogflix.test", Path: "/"},
	})
	if assert.Len(t, params, 2) {
		assert.Equal(t, "hf_session", params[0].Name)
		assert.True(t, params[0].Secure)
		if assert.NotNil(t, params[0].Expires) {
			assert.Equal(t, int64(1893456000), params[0].Expires.Time().Unix())
		}
		assert.Nil(t, params[1].Expires)
	}
}
