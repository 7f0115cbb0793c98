package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSemaphore(t *testing.T) {
	sem := NewRunSemaphore(1)

	require.NoError(t, sem.Acquire())
	assert.Equal(t, 1, sem.Active())

	err := sem.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyRuns)

	sem.Release()
	assert.Equal(t, 0, sem.Active())
	require.NoError(t, sem.Acquire())
}

func TestRunSemaphoreUnlimited(t *testing.T) {
	sem := NewRunSemaphore(0)
	for i := 0; i < 10; i++ {
		require.NoError(t, sem.Acquire())
	}
	assert.Equal(t, 10, sem.Active())
}

func TestStartRunRejectedWhenSemaphoreFull(t *testing.T) {
	client := newStubClient()
	svc, _ := testImportService(t, client)

	sem := NewRunSemaphore(1)
	require.NoError(t, sem.Acquire())
	svc.SetRunSemaphore(sem)

	_, err := svc.StartRun(context.Background(), &RunInput{
		SpreadsheetName: "products.csv",
		Rows:            []map[string]string{{"Product Title": "Red Mug", "_row": "2"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooManyRuns)
}
