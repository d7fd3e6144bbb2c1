package clients

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"client_service/internal/models"
	"client_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportCSV_EmptyListYieldsHeaderOnly(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo())

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), owner, &buf))

	assert.Equal(t, "Nome,Email,Telefone,Criado em,Atualizado em\n", buf.String())
}

func TestExportCSV_RowsWithDayGranularityDates(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.clients[1] = models.Client{
		ID:        1,
		Name:      "João Silva",
		Email:     "joao@email.com",
		Phone:     "11999999999",
		OwnerID:   owner.ID,
		CreatedAt: time.Date(2025, 1, 1, 15, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2025, 1, 2, 23, 59, 59, 0, time.UTC),
	}
	repo.clients[2] = models.Client{
		ID:        2,
		Name:      "Maria Souza",
		Email:     "maria@email.com",
		Phone:     "11888888888",
		OwnerID:   owner.ID,
		CreatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	// Someone else's client must not leak into the export.
	repo.clients[3] = models.Client{ID: 3, Name: "Foreign", Email: "f@email.com", Phone: "11777777777", OwnerID: other.ID}
	repo.nextID = 4

	svc := newTestService(repo)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCSV(context.Background(), owner, &buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3, "header plus one line per client")

	assert.Equal(t, "Nome,Email,Telefone,Criado em,Atualizado em", lines[0])
	assert.Equal(t, "João Silva,joao@email.com,11999999999,2025-01-01,2025-01-02", lines[1])
	assert.Equal(t, "Maria Souza,maria@email.com,11888888888,2025-02-01,2025-02-01", lines[2])
}

func TestExportCSV_CursorStopsOnWriteError(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	for i := int64(1); i <= 5; i++ {
		repo.clients[i] = models.Client{
			ID:      i,
			Name:    fmt.Sprintf("Client %d", i),
			Email:   fmt.Sprintf("c%d@email.com", i),
			Phone:   fmt.Sprintf("1199999990%d", i),
			OwnerID: owner.ID,
		}
	}
	repo.nextID = 6

	svc := newTestService(repo)

	err := svc.ExportCSV(context.Background(), owner, failingWriter{})
	assert.Error(t, err, "a broken consumer must surface, not hang the cursor")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, fmt.Errorf("consumer went away")
}

func TestImportCSV_EmptyFile(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo())

	err := svc.ImportCSV(context.Background(), nil, owner)
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestImportCSV_ParsesRowsBoundToImporter(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	csvData := []byte(
		"Nome,Email,Telefone,Criado em,Atualizado em\n" +
			"Maria Silva, MARIA@EMAIL.COM ,11888888888,2025-01-01,2025-01-02\n" +
			"\n" + // blank lines are ignored
			"José Santos,jose@email.com,11777777777,2024-12-31,2024-12-31\n",
	)

	require.NoError(t, svc.ImportCSV(context.Background(), csvData, owner))

	require.Len(t, repo.imported, 1, "one atomic batch")
	batch := repo.imported[0]
	require.Len(t, batch, 2)

	first := batch[0]
	assert.Equal(t, "Maria Silva", first.Name)
	assert.Equal(t, "maria@email.com", first.Email, "fields trimmed, email lowercased")
	assert.Equal(t, owner.ID, first.OwnerID)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), first.CreatedAt, "dates expand to midnight")
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), first.UpdatedAt)

	assert.Equal(t, "José Santos", batch[1].Name)
}

func TestImportCSV_ConstraintViolationPersistsNothing(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.importErr = fmt.Errorf("%w: clients_email_key", storage.ErrConstraintViolation)
	svc := newTestService(repo)

	csvData := []byte(
		"Nome,Email,Telefone,Criado em,Atualizado em\n" +
			"Maria Silva,maria@email.com,11888888888,2025-01-01,2025-01-02\n",
	)

	err := svc.ImportCSV(context.Background(), csvData, owner)
	assert.ErrorIs(t, err, storage.ErrConstraintViolation)
	assert.Empty(t, repo.clients, "batch failure must persist zero rows")
}

func TestImportCSV_MalformedInput(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo())

	cases := map[string]string{
		"missing column": "Nome,Email,Telefone\nA,B,C\n",
		"bad date":       "Nome,Email,Telefone,Criado em,Atualizado em\nA,a@x.com,11999999999,01/01/2025,2025-01-01\n",
	}

	for name, data := range cases {
		err := svc.ImportCSV(context.Background(), []byte(data), owner)
		assert.ErrorIs(t, err, ErrBadFile, name)
	}
}
