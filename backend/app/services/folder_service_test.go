package services

import (
	"context"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folder-sync/backend/app/db"
	"folder-sync/backend/app/models"
	"folder-sync/backend/app/repo"
	"folder-sync/backend/app/syncer"
)

type okGateway struct{}

func (okGateway) Send(ctx context.Context, computerID string, op syncer.WireOperation) error {
	return nil
}

type fixture struct {
	users     *UserService
	computers *ComputerService
	folders   *FolderService

	folderRepo *repo.FolderRepository
	backupRepo *repo.FolderBackupRepository

	coord   *syncer.Coordinator
	tracker *syncer.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb, err := db.Connect(db.Config{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.User{}, &models.Computer{}, &models.Folder{}, &models.FolderBackup{}))

	userRepo := repo.NewUserRepository(gdb)
	computerRepo := repo.NewComputerRepository(gdb)
	folderRepo := repo.NewFolderRepository(gdb)
	backupRepo := repo.NewFolderBackupRepository(gdb)

	clock := clockwork.NewFakeClock()
	tracker := syncer.NewTracker(clock, 0, zerolog.Nop())
	log := syncer.NewLog()
	coord := syncer.NewCoordinator(tracker, log, okGateway{}, folderRepo, clock, 0, zerolog.Nop())
	t.Cleanup(func() {
		coord.Close()
		tracker.Close()
	})

	return &fixture{
		users:      NewUserService(userRepo, computerRepo, coord, tracker),
		computers:  NewComputerService(computerRepo, backupRepo, coord, tracker),
		folders:    NewFolderService(folderRepo, backupRepo, computerRepo, coord),
		folderRepo: folderRepo,
		backupRepo: backupRepo,
		coord:      coord,
		tracker:    tracker,
	}
}

// seed registers a user with two computers and one folder originating on
// the first computer.
func (fx *fixture) seed(t *testing.T) (userID, origin, backup, folderID string) {
	t.Helper()
	u, err := fx.users.Register("alice", "s3cret")
	require.NoError(t, err)
	c1, err := fx.computers.Register(u.ID, "desktop")
	require.NoError(t, err)
	c2, err := fx.computers.Register(u.ID, "laptop")
	require.NoError(t, err)
	f, err := fx.folders.CreateFolder(u.ID, "documents", c1.ID)
	require.NoError(t, err)
	return u.ID, c1.ID, c2.ID, f.ID
}

func TestCreateFolderRejectsForeignOrigin(t *testing.T) {
	fx := newFixture(t)
	_, _, _, _ = fx.seed(t)

	mallory, err := fx.users.Register("mallory", "pw")
	require.NoError(t, err)
	stolen, err := fx.computers.Register(mallory.ID, "workstation")
	require.NoError(t, err)

	alice, err := fx.users.ValidateCredentials("alice", "s3cret")
	require.NoError(t, err)

	_, err = fx.folders.CreateFolder(alice.ID, "exfil", stolen.ID)
	assert.ErrorIs(t, err, syncer.ErrInvalidOrigin)
}

func TestNewFolderStartsSynced(t *testing.T) {
	fx := newFixture(t)
	userID, _, _, folderID := fx.seed(t)

	st, err := fx.folders.Status(userID, folderID)
	require.NoError(t, err)
	assert.True(t, st.IsSynced)
	assert.Equal(t, int64(0), st.PendingOperations)
}

func TestAddBackupTargetValidation(t *testing.T) {
	fx := newFixture(t)
	userID, origin, backup, folderID := fx.seed(t)

	err := fx.folders.AddBackupTarget(userID, folderID, origin)
	assert.ErrorIs(t, err, syncer.ErrSelfBackup)
	exists, err := fx.backupRepo.Exists(folderID, origin)
	require.NoError(t, err)
	assert.False(t, exists, "rejected self backup must leave no row")

	err = fx.folders.AddBackupTarget(userID, folderID, "no-such-computer")
	assert.ErrorIs(t, err, syncer.ErrUnknownComputer)

	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))
	err = fx.folders.AddBackupTarget(userID, folderID, backup)
	assert.ErrorIs(t, err, syncer.ErrDuplicateBackup)
}

func TestJoiningTargetOwesFullResync(t *testing.T) {
	fx := newFixture(t)
	userID, _, backup, folderID := fx.seed(t)

	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))

	st, err := fx.folders.Status(userID, folderID)
	require.NoError(t, err)
	assert.False(t, st.IsSynced)
	assert.Equal(t, int64(1), st.PendingOperations)

	// The cached projection follows the derived state.
	row, err := fx.folderRepo.FindByID(folderID)
	require.NoError(t, err)
	assert.False(t, row.IsSynced)
	assert.Equal(t, int64(1), row.PendingOperations)

	require.NoError(t, fx.folders.Acknowledge(userID, folderID, backup, 1))

	st, err = fx.folders.Status(userID, folderID)
	require.NoError(t, err)
	assert.True(t, st.IsSynced)

	row, err = fx.folderRepo.FindByID(folderID)
	require.NoError(t, err)
	assert.True(t, row.IsSynced)
	assert.Equal(t, int64(0), row.PendingOperations)
}

func TestReportChangeOriginOnly(t *testing.T) {
	fx := newFixture(t)
	userID, origin, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))

	_, err := fx.folders.ReportChange(userID, folderID, backup, syncer.Descriptor{Kind: syncer.ChangeCreate, Path: "a.txt"})
	assert.ErrorIs(t, err, syncer.ErrInvalidOrigin)

	seq, err := fx.folders.ReportChange(userID, folderID, origin, syncer.Descriptor{Kind: syncer.ChangeCreate, Path: "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq) // seq 1 was the join resync
}

func TestAcknowledgeRejectsForeignCaller(t *testing.T) {
	fx := newFixture(t)
	userID, _, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))

	mallory, err := fx.users.Register("mallory", "pw")
	require.NoError(t, err)

	// Another user must not be able to retire alice's pending resync.
	err = fx.folders.Acknowledge(mallory.ID, folderID, backup, 1)
	assert.ErrorIs(t, err, syncer.ErrUnknownFolder)

	st, err := fx.folders.Status(userID, folderID)
	require.NoError(t, err)
	assert.False(t, st.IsSynced)
	assert.Equal(t, int64(1), st.PendingOperations)

	// The owner acking through a computer that is not theirs fails too.
	theirs, err := fx.computers.Register(mallory.ID, "workstation")
	require.NoError(t, err)
	err = fx.folders.Acknowledge(userID, folderID, theirs.ID, 1)
	assert.ErrorIs(t, err, syncer.ErrUnknownComputer)
}

func TestComputerAuthorizeScopedToOwner(t *testing.T) {
	fx := newFixture(t)
	userID, origin, _, _ := fx.seed(t)

	mallory, err := fx.users.Register("mallory", "pw")
	require.NoError(t, err)

	require.NoError(t, fx.computers.Authorize(userID, origin))
	assert.ErrorIs(t, fx.computers.Authorize(mallory.ID, origin), syncer.ErrUnknownComputer)
	assert.ErrorIs(t, fx.computers.Authorize(userID, "no-such-computer"), syncer.ErrUnknownComputer)
}

func TestStatusHiddenFromOtherUsers(t *testing.T) {
	fx := newFixture(t)
	_, _, _, folderID := fx.seed(t)

	mallory, err := fx.users.Register("mallory", "pw")
	require.NoError(t, err)

	_, err = fx.folders.Status(mallory.ID, folderID)
	assert.ErrorIs(t, err, syncer.ErrUnknownFolder)

	_, err = fx.folders.Status(mallory.ID, "no-such-folder")
	assert.ErrorIs(t, err, syncer.ErrUnknownFolder)
}

func TestRemoveBackupTargetReleasesWork(t *testing.T) {
	fx := newFixture(t)
	userID, origin, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))
	_, err := fx.folders.ReportChange(userID, folderID, origin, syncer.Descriptor{Kind: syncer.ChangeModify, Path: "a.txt"})
	require.NoError(t, err)

	require.NoError(t, fx.folders.RemoveBackupTarget(userID, folderID, backup))

	st, err := fx.folders.Status(userID, folderID)
	require.NoError(t, err)
	assert.True(t, st.IsSynced)
	assert.Equal(t, int64(0), st.PendingOperations)

	targets, err := fx.folders.Targets(folderID)
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestSwitchOriginGuards(t *testing.T) {
	fx := newFixture(t)
	userID, origin, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))

	// The joining resync is still owed; the folder is not synced.
	err := fx.folders.SwitchOrigin(userID, folderID, backup)
	assert.ErrorIs(t, err, syncer.ErrNotSynced)

	require.NoError(t, fx.folders.Acknowledge(userID, folderID, backup, 1))

	err = fx.folders.SwitchOrigin(userID, folderID, origin)
	assert.ErrorIs(t, err, syncer.ErrNotBackup)

	require.NoError(t, fx.folders.SwitchOrigin(userID, folderID, backup))

	row, err := fx.folderRepo.FindByID(folderID)
	require.NoError(t, err)
	assert.Equal(t, backup, row.OriginComputerID)

	// The demoted origin is now a backup target owing a resync.
	targets, err := fx.folders.Targets(folderID)
	require.NoError(t, err)
	assert.Equal(t, []string{origin}, targets)

	st, err := fx.folders.Status(userID, folderID)
	require.NoError(t, err)
	assert.False(t, st.IsSynced)
	assert.Equal(t, int64(1), st.PendingOperations)
}

func TestComputerRemoveCascades(t *testing.T) {
	fx := newFixture(t)
	userID, origin, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))

	// Removing the backup computer releases its obligations.
	require.NoError(t, fx.computers.Remove(userID, backup))
	st, err := fx.folders.Status(userID, folderID)
	require.NoError(t, err)
	assert.True(t, st.IsSynced)

	// Removing the origin computer takes the folder with it.
	require.NoError(t, fx.computers.Remove(userID, origin))
	_, err = fx.folders.Status(userID, folderID)
	assert.ErrorIs(t, err, syncer.ErrUnknownFolder)

	folders, err := fx.folders.ListByUser(userID)
	require.NoError(t, err)
	assert.Empty(t, folders)
}

func TestUserDeleteCascades(t *testing.T) {
	fx := newFixture(t)
	userID, _, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))

	require.NoError(t, fx.users.Delete(userID))

	_, err := fx.users.ValidateCredentials("alice", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	rows, err := fx.folderRepo.All()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListByComputer(t *testing.T) {
	fx := newFixture(t)
	userID, origin, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))

	asOrigin, err := fx.folders.ListByComputer(userID, origin)
	require.NoError(t, err)
	require.Len(t, asOrigin, 1)
	assert.Equal(t, folderID, asOrigin[0].ID)

	asBackup, err := fx.folders.ListByComputer(userID, backup)
	require.NoError(t, err)
	require.Len(t, asBackup, 1)
	assert.Equal(t, folderID, asBackup[0].ID)

	_, err = fx.folders.ListByComputer(userID, "no-such-computer")
	assert.ErrorIs(t, err, syncer.ErrUnknownComputer)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.users.Register("alice", "pw")
	require.NoError(t, err)
	_, err = fx.users.Register("alice", "pw2")
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestBootstrapReobligatesTargets(t *testing.T) {
	fx := newFixture(t)
	userID, _, backup, folderID := fx.seed(t)
	require.NoError(t, fx.folders.AddBackupTarget(userID, folderID, backup))
	require.NoError(t, fx.folders.Acknowledge(userID, folderID, backup, 1))

	// Simulate a coordinator restart over the same database.
	clock := clockwork.NewFakeClock()
	tracker := syncer.NewTracker(clock, 0, zerolog.Nop())
	defer tracker.Close()
	log := syncer.NewLog()
	coord := syncer.NewCoordinator(tracker, log, okGateway{}, fx.folderRepo, clock, 0, zerolog.Nop())
	defer coord.Close()
	reloaded := NewFolderService(fx.folderRepo, fx.backupRepo, nil, coord)
	require.NoError(t, reloaded.Bootstrap())

	// The in-memory stream restarted, so the target owes a fresh resync.
	st, err := coord.Status(folderID)
	require.NoError(t, err)
	assert.False(t, st.IsSynced)
	assert.Equal(t, int64(1), st.PendingOperations)
}
