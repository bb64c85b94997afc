package customers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

var testActor = types.Actor{UserID: uuid.New(), Role: enums.ActorRoleDealer}

func newSQLiteService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), nil)
	require.NoError(t, err)
	return svc, conn
}

func TestResolveNotFound(t *testing.T) {
	svc, _ := newSQLiteService(t)

	_, err := svc.Resolve(context.Background(), "9000000001")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestResolveRejectsMalformedContact(t *testing.T) {
	svc, _ := newSQLiteService(t)

	for _, contact := range []string{"", "12345", "12345678901", "12345abcde"} {
		_, err := svc.Resolve(context.Background(), contact)
		require.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "contact %q", contact)
	}
}

func TestCreateThenResolve(t *testing.T) {
	svc, _ := newSQLiteService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Contact: " 9000000002 ", Name: "Asha", Actor: testActor})
	require.NoError(t, err)
	require.Equal(t, "9000000002", created.Contact)
	require.Equal(t, enums.CustomerRoleCustomer, created.Role)
	require.Equal(t, testActor.UserID, created.CreatedBy)

	found, err := svc.Resolve(ctx, "9000000002")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	byID, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Asha", byID.Name)
}

func TestCreateIsIdempotentOnContact(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreateInput{Contact: "9000000003", Name: "First", Actor: testActor})
	require.NoError(t, err)
	second, err := svc.Create(ctx, CreateInput{Contact: "9000000003", Name: "Second", Actor: testActor})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "First", second.Name)

	var count int64
	require.NoError(t, conn.Model(&models.Customer{}).Where("contact = ?", "9000000003").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newSQLiteService(t)

	_, err := svc.Create(context.Background(), CreateInput{Contact: "9000000004", Actor: testActor})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bad := "not-an-email"
	_, err = svc.Create(context.Background(), CreateInput{Contact: "9000000004", Name: "X", Email: &bad, Actor: testActor})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveOrCreateConcurrentCallersShareOneCustomer(t *testing.T) {
	svc, conn := newSQLiteService(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]uuid.UUID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := svc.ResolveOrCreate(ctx, "9000000005", "Racer", testActor)
			errs[i] = err
			if c != nil {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
	var count int64
	require.NoError(t, conn.Model(&models.Customer{}).Where("contact = ?", "9000000005").Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCreateRecoversFromLostRace(t *testing.T) {
	existing := &models.Customer{ID: uuid.New(), Contact: "9000000006", Name: "Winner"}
	repo := &fakeRepo{
		createFn: func(*models.Customer) error {
			return errors.New("UNIQUE constraint failed: customers.contact")
		},
		byContact: existing,
	}
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	got, err := svc.Create(context.Background(), CreateInput{Contact: "9000000006", Name: "Loser", Actor: testActor})
	require.NoError(t, err)
	require.Equal(t, existing.ID, got.ID)
}

func TestStorageFailuresAreDependencyErrors(t *testing.T) {
	repo := &fakeRepo{
		lookupErr: errors.New("connection reset"),
		createFn:  func(*models.Customer) error { return errors.New("connection reset") },
	}
	svc, err := NewService(repo, nil)
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), "9000000007")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = svc.Create(context.Background(), CreateInput{Contact: "9000000007", Name: "X", Actor: testActor})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

type fakeRepo struct {
	byContact *models.Customer
	lookupErr error
	createFn  func(*models.Customer) error
}

func (f *fakeRepo) FindByContact(context.Context, string) (*models.Customer, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if f.byContact == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.byContact, nil
}

func (f *fakeRepo) FindByID(context.Context, uuid.UUID) (*models.Customer, error) {
	return f.FindByContact(context.Background(), "")
}

func (f *fakeRepo) Create(_ context.Context, c *models.Customer) error {
	if f.createFn != nil {
		return f.createFn(c)
	}
	return nil
}
