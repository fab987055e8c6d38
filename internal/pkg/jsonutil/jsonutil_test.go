package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractObject(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
		ok   bool
	}{
		"plain":        {in: `{"action":"buy"}`, want: `{"action":"buy"}`, ok: true},
		"prose around": {in: `Decision: {"a":{"b":1}} done`, want: `{"a":{"b":1}}`, ok: true},
		"brace in str": {in: `{"reason":"gap } filled \" ok"}`, want: `{"reason":"gap } filled \" ok"}`, ok: true},
		"fenced":       {in: "note {x}\n```json\n{\"action\":\"hold\"}\n```", want: `{"action":"hold"}`, ok: true},
		"unbalanced":   {in: `{"action":"buy"`, ok: false},
		"empty":        {in: "  ", ok: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, ok := ExtractObject(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "{\n  \"a\": 1\n}", Indent(`{"a":1}`))
	assert.Equal(t, "not json", Indent(" not json "))
}
