package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/medichain/docsign/internal/models"
	"github.com/medichain/docsign/internal/store"
)

func TestTemplateStore_VersionIncrements(t *testing.T) {
	st := NewTemplateStore()
	ctx := context.Background()

	id, err := uuid.NewV7()
	require.NoError(t, err)

	tpl := &models.SignatureTemplate{
		ID:         id,
		Name:       "drug-batch-release",
		Status:     models.TemplateStatusActive,
		TargetType: models.TargetTypeDrug,
		Fields: []models.TemplateField{
			{Key: "batchNumber", Type: "string", Required: true},
		},
	}

	require.NoError(t, st.Create(ctx, tpl))

	got, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)

	got.DefaultPurpose = "batch release approval"
	require.NoError(t, st.Update(ctx, got))

	got, err = st.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)
	require.Equal(t, "batch release approval", got.DefaultPurpose)
}

func TestTemplateStore_Errors(t *testing.T) {
	st := NewTemplateStore()
	ctx := context.Background()

	_, err := st.Get(ctx, uuid.New())
	require.ErrorIs(t, err, store.ErrTemplateNotFound)

	err = st.Update(ctx, &models.SignatureTemplate{ID: uuid.New()})
	require.ErrorIs(t, err, store.ErrTemplateNotFound)

	id := uuid.New()
	require.NoError(t, st.Create(ctx, &models.SignatureTemplate{ID: id}))
	err = st.Create(ctx, &models.SignatureTemplate{ID: id})
	require.ErrorIs(t, err, store.ErrTemplateExists)
}

func TestTemplateStore_ListByStatus(t *testing.T) {
	st := NewTemplateStore()
	ctx := context.Background()

	require.NoError(t, st.Create(ctx, &models.SignatureTemplate{ID: uuid.New(), Status: models.TemplateStatusActive}))
	require.NoError(t, st.Create(ctx, &models.SignatureTemplate{ID: uuid.New(), Status: models.TemplateStatusArchived}))

	active, err := st.List(ctx, models.TemplateStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	all, err := st.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}
