package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashWithDomainSeparatesDomains(t *testing.T) {
	data := []byte(`{"a":1}`)
	a := HashWithDomain(DomainRecord, data)
	b := HashWithDomain(DomainSeal, data)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, HashWithDomain(DomainRecord, data))
}

func TestFingerprintIgnoresMapOrder(t *testing.T) {
	one, err := Fingerprint(DomainRecord, Object{"x": Int(1), "y": String("z")})
	require.NoError(t, err)
	two, err := Fingerprint(DomainRecord, Object{"y": String("z"), "x": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, one, two)
}

func TestFingerprintRejectsFloat(t *testing.T) {
	_, err := Fingerprint(DomainRecord, map[string]any{"x": 0.1})
	assert.Error(t, err)
}
