package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSONPretty(t *testing.T) {
	v := map[string]any{"id": "1", "name": "ether1"}

	compact, err := MarshalJSONPretty(v, false)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","name":"ether1"}`, string(compact))

	pretty, err := MarshalJSONPretty(v, true)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"id\": \"1\",\n  \"name\": \"ether1\"\n}", string(pretty))
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, []string{"a"}))

	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"a"`)
}

func TestPrintJSON_Unsupported(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, PrintJSON(&buf, make(chan int)))
	assert.Empty(t, buf.String())
}
