package clients

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"testing"

	"client_service/internal/models"
	"client_service/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	clients   map[int64]models.Client
	nextID    int64
	updates   int
	deletes   int
	importErr error
	imported  [][]models.Client
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{clients: make(map[int64]models.Client), nextID: 1}
}

func (f *fakeRepo) SaveClient(_ context.Context, c models.Client) (int64, error) {
	for _, existing := range f.clients {
		if existing.Email == c.Email {
			return 0, storage.ErrEmailExists
		}
		if existing.Phone == c.Phone {
			return 0, storage.ErrPhoneExists
		}
	}

	c.ID = f.nextID
	f.nextID++
	f.clients[c.ID] = c

	return c.ID, nil
}

func (f *fakeRepo) ClientByID(_ context.Context, id int64) (models.Client, error) {
	c, ok := f.clients[id]
	if !ok {
		return models.Client{}, storage.ErrClientNotFound
	}
	return c, nil
}

func (f *fakeRepo) UpdateClient(_ context.Context, c models.Client) error {
	if _, ok := f.clients[c.ID]; !ok {
		return storage.ErrClientNotFound
	}

	f.updates++
	f.clients[c.ID] = c

	return nil
}

func (f *fakeRepo) DeleteClient(_ context.Context, id int64) error {
	if _, ok := f.clients[id]; !ok {
		return storage.ErrClientNotFound
	}

	f.deletes++
	delete(f.clients, id)

	return nil
}

func (f *fakeRepo) ExistsClientByEmail(_ context.Context, email string) (bool, error) {
	for _, c := range f.clients {
		if c.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ExistsClientByPhone(_ context.Context, phone string) (bool, error) {
	for _, c := range f.clients {
		if c.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ClientsByOwner(
	_ context.Context,
	ownerID int64,
	offset, limit int,
	search string,
) ([]models.Client, int64, error) {
	matched := f.ownedSorted(ownerID)

	if search != "" {
		filtered := matched[:0]
		needle := strings.ToLower(search)
		for _, c := range matched {
			if strings.Contains(strings.ToLower(c.Name), needle) ||
				strings.Contains(strings.ToLower(c.Email), needle) ||
				strings.Contains(c.Phone, search) {
				filtered = append(filtered, c)
			}
		}
		matched = filtered
	}

	total := int64(len(matched))

	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], total, nil
}

func (f *fakeRepo) EachClientByOwner(_ context.Context, ownerID int64, fn func(models.Client) error) error {
	for _, c := range f.ownedSorted(ownerID) {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) ImportClients(_ context.Context, clients []models.Client) error {
	if f.importErr != nil {
		return f.importErr
	}

	f.imported = append(f.imported, clients)

	for _, c := range clients {
		c.ID = f.nextID
		f.nextID++
		f.clients[c.ID] = c
	}

	return nil
}

func (f *fakeRepo) ownedSorted(ownerID int64) []models.Client {
	var owned []models.Client
	for _, c := range f.clients {
		if c.OwnerID == ownerID {
			owned = append(owned, c)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].ID < owned[j].ID })
	return owned
}

func newTestService(repo Repository) *Service {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), repo)
}

var (
	owner = models.User{ID: 1, Email: "owner@x.com", Name: "Owner"}
	other = models.User{ID: 2, Email: "other@x.com", Name: "Other"}
)

func TestCreate_LowercasesEmailAndSetsOwner(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	id, err := svc.Create(context.Background(), ClientData{
		Name:  "Client One",
		Email: "C@X.COM",
		Phone: "11999999999",
	}, owner)
	require.NoError(t, err)

	saved := repo.clients[id]
	assert.Equal(t, "c@x.com", saved.Email)
	assert.Equal(t, owner.ID, saved.OwnerID)
}

func TestCreate_DuplicateEmailAnyOwner(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "c@x.com", Phone: "11999999999"}, owner)
	require.NoError(t, err)

	// Uniqueness is global, not per owner.
	_, err = svc.Create(context.Background(), ClientData{Name: "Two", Email: "C@x.com", Phone: "11888888888"}, other)
	assert.ErrorIs(t, err, storage.ErrEmailExists)
}

func TestCreate_DuplicatePhone(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "a@x.com", Phone: "11999999999"}, owner)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), ClientData{Name: "Two", Email: "b@x.com", Phone: "11999999999"}, owner)
	assert.ErrorIs(t, err, storage.ErrPhoneExists)
}

func TestUpdate_OwnUnchangedEmailIsExempt(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	id, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "c@x.com", Phone: "11999999999"}, owner)
	require.NoError(t, err)

	// Same email, new name: existsByEmail is true but the value is unchanged.
	err = svc.Update(context.Background(), id, ClientData{Name: "Renamed", Email: "c@x.com", Phone: "11999999999"}, owner)
	require.NoError(t, err)

	assert.Equal(t, "Renamed", repo.clients[id].Name)
}

func TestUpdate_CollidingEmailOfOtherClient(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "a@x.com", Phone: "11111111111"}, owner)
	require.NoError(t, err)
	id, err := svc.Create(context.Background(), ClientData{Name: "Two", Email: "b@x.com", Phone: "22222222222"}, owner)
	require.NoError(t, err)

	err = svc.Update(context.Background(), id, ClientData{Name: "Two", Email: "a@x.com", Phone: "22222222222"}, owner)
	assert.ErrorIs(t, err, storage.ErrEmailExists)
}

func TestUpdate_UnknownClient(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo())

	err := svc.Update(context.Background(), 99, ClientData{Name: "X", Email: "x@x.com", Phone: "11999999999"}, owner)
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestUpdate_NonOwnerRejectedWithoutWrite(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	id, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "c@x.com", Phone: "11999999999"}, owner)
	require.NoError(t, err)

	err = svc.Update(context.Background(), id, ClientData{Name: "Hacked", Email: "new@x.com", Phone: "11888888888"}, other)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Zero(t, repo.updates)
	assert.Equal(t, "One", repo.clients[id].Name)
}

func TestUpdate_UniquenessCheckedBeforeOwnership(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "a@x.com", Phone: "11111111111"}, owner)
	require.NoError(t, err)
	id, err := svc.Create(context.Background(), ClientData{Name: "Two", Email: "b@x.com", Phone: "22222222222"}, owner)
	require.NoError(t, err)

	// A non-owner colliding on email sees the uniqueness failure, not the
	// ownership one. Kept for compatibility with the original flow.
	err = svc.Update(context.Background(), id, ClientData{Name: "Two", Email: "a@x.com", Phone: "22222222222"}, other)
	assert.ErrorIs(t, err, storage.ErrEmailExists)
}

func TestDelete_NonOwnerRejectedWithoutWrite(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	id, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "c@x.com", Phone: "11999999999"}, owner)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), id, other)
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Zero(t, repo.deletes)

	_, ok := repo.clients[id]
	assert.True(t, ok)
}

func TestDelete_UnknownClient(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeRepo())

	err := svc.Delete(context.Background(), 99, owner)
	assert.ErrorIs(t, err, storage.ErrClientNotFound)
}

func TestList_PagesAndSearch(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	for i := 0; i < 15; i++ {
		_, err := svc.Create(context.Background(), ClientData{
			Name:  "Client " + string(rune('A'+i)),
			Email: string(rune('a'+i)) + "@x.com",
			Phone: "119999999" + string(rune('0'+i/10)) + string(rune('0'+i%10)),
		}, owner)
		require.NoError(t, err)
	}

	first, total, err := svc.List(context.Background(), owner, 0, "")
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)
	assert.Len(t, first, 11, "page size is fixed at 11")

	second, _, err := svc.List(context.Background(), owner, 1, "")
	require.NoError(t, err)
	assert.Len(t, second, 4)

	found, total, err := svc.List(context.Background(), owner, 0, "Client A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, found, 1)
	assert.Equal(t, "Client A", found[0].Name)

	// Negative pages clamp to the first page.
	clamped, _, err := svc.List(context.Background(), owner, -3, "")
	require.NoError(t, err)
	assert.Len(t, clamped, 11)
}

func TestList_HugePageDoesNotOverflowOffset(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), ClientData{Name: "One", Email: "a@x.com", Phone: "11999999999"}, owner)
	require.NoError(t, err)

	// math.MaxInt * pageSize wraps negative without the clamp; the repo
	// must only ever see a non-negative offset.
	items, total, err := svc.List(context.Background(), owner, math.MaxInt, "")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(1), total)
}
