package models

import (
	"testing"

	"github.com/SHAIKYASIR/skillsync/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRowProject(t *testing.T) {
	row := store.Row{
		"id":               "01HZ",
		"name":             "Atlas",
		"ownerId":          "u1",
		"createdAt":        float64(1_700_000_000_123),
		"content":          "",
		"completionStatus": float64(0.5),
	}
	p, err := FromRow[Project](row)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000_123), p.CreatedAt)
	assert.Equal(t, 0.5, p.CompletionStatus)
	assert.Equal(t, "Atlas", p.Name)
}

func TestFromRowUserOptional(t *testing.T) {
	u, err := FromRow[User](store.Row{"id": "1", "tokenIdentifier": "t", "email": "e"})
	require.NoError(t, err)
	assert.Nil(t, u.SubscriptionEndsOn)
	assert.False(t, u.SubscriptionActive(0))

	ends := int64(2000)
	u.SubscriptionEndsOn = &ends
	assert.True(t, u.SubscriptionActive(1000))
	assert.False(t, u.SubscriptionActive(3000))
}
