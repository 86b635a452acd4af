package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	response string
	err      error
}

func (f *fakeClient) Complete(_ context.Context, _ string) (string, error) {
	return f.response, f.err
}

func (f *fakeClient) CompleteWithSystem(_ context.Context, _, _ string) (string, error) {
	return f.response, f.err
}

func TestExtractParsesFencedCatalog(t *testing.T) {
	client := &fakeClient{response: "Aquí está el catálogo:\n```json\n{\n  \"actors\": [{\"id\": \"a1\", \"name\": \"administrador\", \"description\": \"gestiona el sistema\"}],\n  \"functionalities\": [{\"id\": \"F-001\", \"actorId\": \"a1\", \"action\": \"dar de alta pedidos\", \"userGoal\": \"registrar ventas\", \"benefit\": \"control de stock\", \"category\": \"functional\", \"validations\": [], \"sourceChunkIds\": [\"c_1\"]}],\n  \"glossary\": [],\n  \"openQuestions\": []\n}\n```"}

	reqs, err := NewExtractor(client, nil).Extract(context.Background(), "evidencia", "texto")
	require.NoError(t, err)
	require.Len(t, reqs.Actors, 1)
	require.Len(t, reqs.Functionalities, 1)
	assert.Equal(t, "administrador", reqs.Actors[0].Name)
	assert.Equal(t, "a1", reqs.Functionalities[0].ActorID)
}

func TestExtractFailsOnUnparseableResponse(t *testing.T) {
	client := &fakeClient{response: "lo siento, no puedo generar eso"}
	_, err := NewExtractor(client, nil).Extract(context.Background(), "", "")
	assert.Error(t, err)
}

func TestExtractPropagatesClientError(t *testing.T) {
	client := &fakeClient{err: errors.New("quota exceeded")}
	_, err := NewExtractor(client, nil).Extract(context.Background(), "", "")
	assert.ErrorContains(t, err, "quota exceeded")
}
