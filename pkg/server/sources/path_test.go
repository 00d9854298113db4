package sources

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, body string) interface{} {
	t.Helper()
	var doc interface{}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))
	return doc
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		path    string
		want    float64
		wantErr error
	}{
		{name: "nested string", body: `{"a":{"b":{"c":"42.5"}}}`, path: "a.b.c", want: 42.5},
		{name: "array index", body: `{"data":[{"last":"3.55"}]}`, path: "data.0.last", want: 3.55},
		{name: "plain number", body: `{"price":1.25}`, path: "price", want: 1.25},
		{name: "coingecko shape", body: `{"near":{"usd":5.12}}`, path: "near.usd", want: 5.12},
		{name: "empty segments skipped", body: `{"a":{"b":7}}`, path: ".a..b.", want: 7},
		{name: "padded string", body: `{"p":" 9.5 "}`, path: "p", want: 9.5},
		{name: "top level array", body: `[1,[2,3]]`, path: "1.1", want: 3},
		{name: "negative index is a key", body: `{"-1":4}`, path: "-1", want: 4},
		{name: "dotted key is not addressable", body: `{"1.5":{"x":2}}`, path: "1.5.x", wantErr: ErrPathNotFound},
		{name: "missing key", body: `{"a":{}}`, path: "a.price", wantErr: ErrPathNotFound},
		{name: "index out of range", body: `{"data":[]}`, path: "data.0.last", wantErr: ErrPathNotFound},
		{name: "index on object", body: `{"data":{"0":1}}`, path: "data.0", wantErr: ErrPathNotFound},
		{name: "key on array", body: `{"data":[1]}`, path: "data.last", wantErr: ErrPathNotFound},
		{name: "null midway", body: `{"a":null}`, path: "a.b", wantErr: ErrPathNotFound},
		{name: "null leaf", body: `{"a":null}`, path: "a", wantErr: ErrPathNotFound},
		{name: "unparseable string", body: `{"a":"n/a"}`, path: "a", wantErr: ErrNotNumeric},
		{name: "bool leaf", body: `{"a":true}`, path: "a", wantErr: ErrNotNumeric},
		{name: "object leaf", body: `{"a":{"b":1}}`, path: "a", wantErr: ErrNotNumeric},
		{name: "infinite string", body: `{"a":"Inf"}`, path: "a", wantErr: ErrNotNumeric},
		{name: "single element array leaf", body: `{"p":["5"]}`, path: "p", want: 5},
		{name: "nested single element array leaf", body: `{"p":[[2.25]]}`, path: "p", want: 2.25},
		{name: "multi element array leaf", body: `{"p":["5","6"]}`, path: "p", wantErr: ErrNotNumeric},
		{name: "empty array leaf", body: `{"p":[]}`, path: "p", wantErr: ErrNotNumeric},
		{name: "single object array leaf", body: `{"p":[{"x":1}]}`, path: "p", wantErr: ErrNotNumeric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(decode(t, tt.body), tt.path)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, ErrExtraction)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestExtract_NativeValues(t *testing.T) {
	doc := map[string]interface{}{
		"i":   int64(12),
		"f32": float32(0.5),
		"nil": nil,
	}

	got, err := Extract(doc, "i")
	require.NoError(t, err)
	assert.Equal(t, 12.0, got)

	got, err = Extract(doc, "f32")
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)

	_, err = Extract(nil, "a")
	assert.ErrorIs(t, err, ErrPathNotFound)
}
