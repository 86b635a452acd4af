package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstJSONPlainObject(t *testing.T) {
	raw, err := FirstJSON(`  {"a": 1}  `)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestFirstJSONFencedBlock(t *testing.T) {
	content := "Claro, aquí tienes el resultado:\n```json\n{\"userStories\": []}\n```\nEspero que sirva."
	raw, err := FirstJSON(content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userStories":[]}`, string(raw))
}

func TestFirstJSONEmbeddedMidSentence(t *testing.T) {
	content := `El backlog final es {"stories": [{"title": "alta de usuario"}]} y nada más.`
	raw, err := FirstJSON(content)
	require.NoError(t, err)

	var v struct {
		Stories []struct {
			Title string `json:"title"`
		} `json:"stories"`
	}
	require.NoError(t, json.Unmarshal(raw, &v))
	require.Len(t, v.Stories, 1)
	assert.Equal(t, "alta de usuario", v.Stories[0].Title)
}

func TestFirstJSONSkipsBracesInsideStrings(t *testing.T) {
	content := `prefix {"msg": "llave suelta } aquí", "n": 2} suffix`
	raw, err := FirstJSON(content)
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal(raw, &v))
	assert.Equal(t, "llave suelta } aquí", v["msg"])
}

func TestFirstJSONArray(t *testing.T) {
	raw, err := FirstJSON("resultado: [1, 2, 3]")
	require.NoError(t, err)
	assert.JSONEq(t, `[1,2,3]`, string(raw))
}

func TestFirstJSONMalformed(t *testing.T) {
	_, err := FirstJSON(`{"a": sin comillas}`)
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = FirstJSON("solo prosa, nada de JSON")
	assert.ErrorIs(t, err, ErrNoJSON)

	_, err = FirstJSON("   ")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestFirstJSONFirstMatchWins(t *testing.T) {
	content := "```json\n{\"first\": true}\n```\n```json\n{\"second\": true}\n```"
	raw, err := FirstJSON(content)
	require.NoError(t, err)
	assert.JSONEq(t, `{"first":true}`, string(raw))
}

func TestDecode(t *testing.T) {
	var v struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, Decode("antes {\"score\": 88} después", &v))
	assert.Equal(t, 88.0, v.Score)
}
