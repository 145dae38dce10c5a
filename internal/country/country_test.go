package country

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-compliance-analytics/pkg/errors"
)

func TestNormalize(t *testing.T) {
	alpha3, err := NewNormalizer(Alpha3)
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		want string
	}{
		{"numeric", "840", "USA"},
		{"numeric without padding", "40", "AUT"},
		{"alpha2", "CA", "CAN"},
		{"alpha2 lowercase", "co", "COL"},
		{"alpha3", "MEX", "MEX"},
		{"quoted", "'US'", "USA"},
		{"legacy UK", "UK", "GBR"},
		{"legacy Antilles", "AN", "CUW"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := alpha3.Normalize(tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTargets(t *testing.T) {
	tests := []struct {
		target Representation
		want   string
	}{
		{Alpha2, "US"},
		{Alpha3, "USA"},
		{Numeric, "840"},
	}
	for _, tt := range tests {
		t.Run(string(tt.target), func(t *testing.T) {
			n, err := NewNormalizer(tt.target)
			require.NoError(t, err)
			for _, code := range []string{"840", "US", "USA"} {
				got, err := n.Normalize(code)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got, "code %s", code)
			}
		})
	}
}

func TestNormalizeUnknown(t *testing.T) {
	n, err := NewNormalizer(Alpha3)
	require.NoError(t, err)

	for _, code := range []string{"", "ZZ", "999", "XYZW", "U1"} {
		_, err := n.Normalize(code)
		require.Error(t, err, "code %q", code)
		assert.True(t, errors.HasCode(err, errors.CodeUnknownCountryCode))

		got, ok := n.Resolve(code)
		assert.False(t, ok)
		assert.Equal(t, Unknown, got)
	}
}

func TestNewNormalizerInvalid(t *testing.T) {
	_, err := NewNormalizer("iso9")
	require.Error(t, err)
	pe, ok := errors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfiguration, pe.Category)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, FormNumeric, Detect("840"))
	assert.Equal(t, FormAlpha2, Detect("us"))
	assert.Equal(t, FormAlpha3, Detect("USA"))
	assert.Equal(t, FormUnknown, Detect("U5A"))
	assert.Equal(t, FormUnknown, Detect(""))
}

func TestIsMissing(t *testing.T) {
	assert.True(t, IsMissing(""))
	assert.True(t, IsMissing("SIN INFO"))
	assert.True(t, IsMissing(" 'sin info' "))
	assert.False(t, IsMissing("US"))
}

func TestTableIsConsistent(t *testing.T) {
	assert.Len(t, isoTable, 249)
	for _, e := range isoTable {
		assert.Len(t, e.alpha2, 2)
		assert.Len(t, e.alpha3, 3)
		assert.Len(t, e.numeric, 3)
	}
	assert.Len(t, byAlpha2, len(isoTable))
	assert.Len(t, byAlpha3, len(isoTable))
	assert.Len(t, byNumeric, len(isoTable))
}

func TestConcurrentUse(t *testing.T) {
	n, err := NewNormalizer(Alpha3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, _ := n.Resolve("840")
				assert.Equal(t, "USA", got)
			}
		}()
	}
	wg.Wait()
}
