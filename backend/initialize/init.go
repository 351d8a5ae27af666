package initialize

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"folder-sync/backend/app/controllers"
	"folder-sync/backend/app/db"
	jwtutil "folder-sync/backend/app/jwt"
	"folder-sync/backend/app/middleware"
	"folder-sync/backend/app/models"
	"folder-sync/backend/app/repo"
	"folder-sync/backend/app/services"
	"folder-sync/backend/app/socket"
	"folder-sync/backend/app/syncer"
	"folder-sync/backend/config"
	"folder-sync/backend/global"
	"folder-sync/backend/router"
)

// App holds every long-lived component the process runs.
type App struct {
	Cfg      *config.Config
	Router   http.Handler
	Hub      *socket.Hub
	Presence *syncer.Tracker
	Coord    *syncer.Coordinator

	Users     *services.UserService
	Computers *services.ComputerService
	Folders   *services.FolderService
}

// Build loads configuration, opens storage and assembles the coordinator
// graph. Components come up in dependency order: db, presence, op log,
// hub, coordinator, services, controllers.
func Build(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	global.Config = cfg

	gdb, err := db.Connect(db.Config{
		Driver:   cfg.DB.Driver,
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Pass,
		DBName:   cfg.DB.Name,
		Path:     cfg.DB.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	global.Mdb = gdb

	if err := gdb.AutoMigrate(&models.User{}, &models.Computer{}, &models.Folder{}, &models.FolderBackup{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.Redis.Addr != "" {
		global.Rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	}

	userRepo := repo.NewUserRepository(gdb)
	computerRepo := repo.NewComputerRepository(gdb)
	folderRepo := repo.NewFolderRepository(gdb)
	backupRepo := repo.NewFolderBackupRepository(gdb)

	clock := clockwork.NewRealClock()

	presence := syncer.NewTracker(clock, cfg.Sync.LivenessTimeout, global.Logger)
	presence.SetStore(computerRepo)
	if global.Rdb != nil {
		presence.SetMirror(global.Rdb)
	}

	oplog := syncer.NewLog()

	signer := &jwtutil.Signer{
		Secret: []byte(cfg.JWT.Secret),
		Issuer: cfg.JWT.Issuer,
		ExpMin: cfg.JWT.ExpMin,
	}

	hub := socket.NewHub(presence, signer, cfg.Sync.DispatchTimeout, global.Logger)

	coord := syncer.NewCoordinator(presence, oplog, hub, folderRepo, clock, cfg.Sync.RetryDelay, global.Logger)

	userSvc := services.NewUserService(userRepo, computerRepo, coord, presence)
	computerSvc := services.NewComputerService(computerRepo, backupRepo, coord, presence)
	folderSvc := services.NewFolderService(folderRepo, backupRepo, computerRepo, coord)

	// Acks arriving over the socket outside a dispatch round-trip still
	// have to reach the coordinator.
	hub.SetComputerAuth(computerRepo.BelongsToUser)
	hub.SetAckHandler(func(userID, folderID, computerID string, seq uint64) {
		if err := folderSvc.Acknowledge(userID, folderID, computerID, seq); err != nil {
			global.Logger.Warn().Err(err).
				Str("folder", folderID).Str("computer", computerID).Uint64("seq", seq).
				Msg("stray ack rejected")
		}
	})

	if err := folderSvc.Bootstrap(); err != nil {
		return nil, fmt.Errorf("bootstrap folders: %w", err)
	}

	authCtrl := controllers.NewAuthController(userSvc, signer)
	computerCtrl := controllers.NewComputerController(computerSvc)
	folderCtrl := controllers.NewFolderController(folderSvc)
	syncCtrl := controllers.NewSyncController(folderSvc, computerSvc, presence)

	mw := &middleware.Auth{Signer: signer}
	handler := middleware.Logging(router.NewRouter(authCtrl, computerCtrl, folderCtrl, syncCtrl, mw))

	return &App{
		Cfg:       cfg,
		Router:    handler,
		Hub:       hub,
		Presence:  presence,
		Coord:     coord,
		Users:     userSvc,
		Computers: computerSvc,
		Folders:   folderSvc,
	}, nil
}

// Shutdown stops background goroutines. Safe to call once.
func (a *App) Shutdown() {
	a.Coord.Close()
	a.Presence.Close()
	if global.Rdb != nil {
		_ = global.Rdb.Close()
	}
}
