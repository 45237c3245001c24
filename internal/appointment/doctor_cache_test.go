package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	*MemoryRepository
	doctorLookups int
}

func (c *countingRepo) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	c.doctorLookups++
	return c.MemoryRepository.GetDoctorByID(ctx, id)
}

func TestCachedRepository_GetDoctorByID(t *testing.T) {
	inner := &countingRepo{MemoryRepository: NewMemoryRepository()}
	doc := inner.AddDoctor(Doctor{Name: "Rao"})
	repo := NewCachedRepository(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := repo.GetDoctorByID(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Rao", got.Name)
	}
	assert.Equal(t, 1, inner.doctorLookups)

	// misses are not cached
	_, err := repo.GetDoctorByID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrDoctorNotFound)
	_, err = repo.GetDoctorByID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrDoctorNotFound)
	assert.Equal(t, 3, inner.doctorLookups)
}

func TestCachedRepository_ReturnsCopies(t *testing.T) {
	inner := NewMemoryRepository()
	doc := inner.AddDoctor(Doctor{Name: "Rao"})
	repo := NewCachedRepository(inner, time.Minute)

	first, err := repo.GetDoctorByID(context.Background(), doc.ID)
	require.NoError(t, err)
	first.Name = "changed"

	second, err := repo.GetDoctorByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rao", second.Name)
}
