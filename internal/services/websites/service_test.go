package websites

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitewarden/internal/testutil"
)

func TestRegisterAndGet(t *testing.T) {
	svc := New(testutil.NewMemoryStore())
	ctx := context.Background()
	key := "k-123"

	w, err := svc.Register(ctx, "https://blog.example.org/", "u1", &key)
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "https://blog.example.org/", w.URL)
	require.NotNil(t, w.APIKey)

	got, err := svc.Get(ctx, w.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)

	_, err = svc.Get(ctx, w.ID, "someone-else")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegister_Validation(t *testing.T) {
	svc := New(testutil.NewMemoryStore())
	ctx := context.Background()

	_, err := svc.Register(ctx, "javascript:alert(1)", "u1", nil)
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = svc.Register(ctx, "https://example.com", "", nil)
	assert.ErrorIs(t, err, ErrNoOwner)

	empty := ""
	w, err := svc.Register(ctx, "https://example.com", "u1", &empty)
	require.NoError(t, err)
	assert.Nil(t, w.APIKey)
}
