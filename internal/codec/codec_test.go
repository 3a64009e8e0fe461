package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string
	Count int
}

func TestJSONRoundTripSmallValue(t *testing.T) {
	c := New(JSONSerializer{}, 4096)
	data, compressed, err := c.Encode(sample{Name: "a", Count: 1})
	require.NoError(t, err)
	assert.False(t, compressed)

	var out sample
	require.NoError(t, c.Decode(data, compressed, &out))
	assert.Equal(t, sample{Name: "a", Count: 1}, out)
}

func TestJSONRoundTripCompressesAboveThreshold(t *testing.T) {
	c := New(JSONSerializer{}, 10)
	big := sample{Name: string(make([]byte, 500)), Count: 2}
	data, compressed, err := c.Encode(big)
	require.NoError(t, err)
	assert.True(t, compressed)

	var out sample
	require.NoError(t, c.Decode(data, compressed, &out))
	assert.Equal(t, big, out)
}

func TestCompressionThresholdBoundary(t *testing.T) {
	c := New(JSONSerializer{}, 100)

	small := sample{Name: "short", Count: 1}
	data, compressed, err := c.Encode(small)
	require.NoError(t, err)
	assert.False(t, compressed)
	var out sample
	require.NoError(t, c.Decode(data, compressed, &out))
	assert.Equal(t, small, out)

	large := sample{Name: string(make([]byte, 1000)), Count: 9}
	data, compressed, err = c.Encode(large)
	require.NoError(t, err)
	assert.True(t, compressed)
	require.NoError(t, c.Decode(data, compressed, &out))
	assert.Equal(t, large, out)
}

func TestBinarySerializerRoundTrip(t *testing.T) {
	c := New(BinarySerializer{}, 4096)
	data, compressed, err := c.Encode(sample{Name: "gob", Count: 7})
	require.NoError(t, err)
	assert.False(t, compressed)

	var out sample
	require.NoError(t, c.Decode(data, compressed, &out))
	assert.Equal(t, sample{Name: "gob", Count: 7}, out)
}

func TestSerializerName(t *testing.T) {
	assert.Equal(t, "json", New(JSONSerializer{}, 0).SerializerName())
	assert.Equal(t, "binary", New(BinarySerializer{}, 0).SerializerName())
}
