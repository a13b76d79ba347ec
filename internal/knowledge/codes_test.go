package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeBookLoadsEmbeddedTable(t *testing.T) {
	book, err := NewCodeBook()
	require.NoError(t, err)
	reqs, err := book.Lookup(context.Background(), "", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, reqs)
}

func TestCodeBookLookupByTopic(t *testing.T) {
	book, err := NewCodeBook()
	require.NoError(t, err)

	reqs, err := book.Lookup(context.Background(), "colorado", []string{"drip edge"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "drip_edge", reqs[0].Topic)
	assert.Equal(t, "IRC R905.2.8.5", reqs[0].CodeReference)
	assert.Equal(t, "colorado", reqs[0].Jurisdiction, "default rows adopt the requested jurisdiction")
}

func TestCodeBookJurisdictionShadowsDefault(t *testing.T) {
	book, err := NewCodeBook()
	require.NoError(t, err)

	reqs, err := book.Lookup(context.Background(), "Texas", []string{"ice barrier"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].CodeReference, "TX amendment")
}

func TestCodeBookAliasMatching(t *testing.T) {
	book, err := NewCodeBook()
	require.NoError(t, err)

	reqs, err := book.Lookup(context.Background(), "florida", []string{"25 percent rule"})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "roof_replacement", reqs[0].Topic)
	assert.Contains(t, reqs[0].CodeReference, "FBC")
}

func TestCodeBookUnknownTopic(t *testing.T) {
	book, err := NewCodeBook()
	require.NoError(t, err)

	reqs, err := book.Lookup(context.Background(), "texas", []string{"helipad"})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestCodeBookRejectsMalformedTable(t *testing.T) {
	_, err := newCodeBook([]byte("codes: {not: [a, list"))
	require.Error(t, err)
}
