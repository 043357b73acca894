package jsoncodec

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flowStats struct {
	Flow string `json:"flow"`
	Runs int    `json:"runs"`
}

func TestMarshalAndUnmarshal(t *testing.T) {
	in := flowStats{Flow: "combinedApi", Runs: 3}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out flowStats
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestUnmarshalPreservingNumbers(t *testing.T) {
	var doc map[string]any
	require.NoError(t, UnmarshalPreservingNumbers([]byte(`{"id":9007199254740993}`), &doc))

	assert.Equal(t, "9007199254740993", fmt.Sprint(doc["id"]))
}

func TestEncode(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, Encode(buf, flowStats{Flow: "resume", Runs: 1}))
	assert.JSONEq(t, `{"flow":"resume","runs":1}`, buf.String())
}
