package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentDecode(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"plain", "plain", true},
		{"a%2Fb", "a/b", true},
		{"%41%61", "Aa", true},
		{"a+b", "a+b", true},
		{"%zz", "", false},
		{"%4", "", false},
		{"end%", "", false},
	}
	for _, tt := range tests {
		got, ok := percentDecode(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLookupArg(t *testing.T) {
	v, ok := lookupArg("xssid=1&ssid=2", "ssid")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	v, ok = lookupArg("ssid=first&pass=x", "ssid")
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	v, ok = lookupArg("ssid=", "ssid")
	assert.True(t, ok)
	assert.Empty(t, v)

	_, ok = lookupArg("pass=x", "ssid")
	assert.False(t, ok)

	_, ok = lookupArg("ssid=%G0", "ssid")
	assert.False(t, ok)
}
