package client

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"

	"github.com/partvault/partvault/internal/client/handlers"
	"github.com/partvault/partvault/internal/client/middleware"
	"github.com/partvault/partvault/internal/client/vaultmgr"
	"github.com/partvault/partvault/internal/version"
)

//	@title						PartVault Control Plane API
//	@version					0.1.0
//	@description				HTTP API for interfacing with the PartVault daemon
//	@BasePath					/
//	@securityDefinitions.apikey	APIToken
//	@in							header
//	@name						Authorization

type RouteConfig struct {
	ClientURL string
	Auth      middleware.TokenAuthConfig
}

func SetupRoutes(vaultMgr *vaultmgr.VaultManager, routeConfig *RouteConfig) http.Handler {
	r := gin.New()

	rateLimitStore := memory.NewStore()
	rateLimiter := limiter.New(rateLimitStore, limiter.Rate{
		Period: 1 * time.Second,
		Limit:  10,
	})

	statusH := handlers.NewStatusHandler(vaultMgr)
	initH := handlers.NewInitHandler(vaultMgr, routeConfig.ClientURL)
	syncH := handlers.NewSyncHandler(vaultMgr)
	checkoutH := handlers.NewCheckoutHandler(vaultMgr)
	conflictsH := handlers.NewConflictsHandler(vaultMgr)
	stagedH := handlers.NewStagedHandler(vaultMgr)
	vaultH := handlers.NewVaultHandler(vaultMgr)
	logsH := handlers.NewLogsHandler()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.Gzip())
	r.Use(mgin.NewMiddleware(rateLimiter))

	r.GET("/", IndexHandler)

	// @Security APIToken
	v1 := r.Group("/v1")
	v1.Use(middleware.TokenAuth(routeConfig.Auth))
	{
		v1.GET("/status", statusH.Status)
		v1.GET("/logs", logsH.GetLogs)

		v1Init := v1.Group("/init")
		{
			v1Init.GET("/token", initH.GetToken)
			v1Init.POST("/vault", initH.InitVault)
		}

		v1Sync := v1.Group("/sync")
		{
			v1Sync.GET("/status", syncH.Status)
			v1Sync.GET("/status/file", syncH.StatusByPath)
			v1Sync.GET("/events", syncH.Events)
			v1Sync.POST("/now", syncH.TriggerSync)
		}

		v1.POST("/checkout", checkoutH.Checkout)
		v1.POST("/checkin", checkoutH.Checkin)
		v1.POST("/checkout/release", checkoutH.Release)
		v1.POST("/checkout/force-release", checkoutH.ForceRelease)

		v1Conflicts := v1.Group("/conflicts")
		{
			v1Conflicts.GET("", conflictsH.List)
			v1Conflicts.POST("/resolve", conflictsH.Resolve)
		}

		v1Staged := v1.Group("/staged")
		{
			v1Staged.GET("", stagedH.List)
			v1Staged.POST("/replay", stagedH.Replay)
			v1Staged.DELETE("/:id", stagedH.Discard)
		}

		v1Vault := v1.Group("/vault")
		{
			v1Vault.POST("/verify", vaultH.Verify)
			v1Vault.POST("/resync", vaultH.Resync)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "not found",
		})
	})

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"error": "method not allowed",
		})
	})

	return r.Handler()
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func IndexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"app":     version.AppName,
		"version": version.Detailed(),
	})
}
