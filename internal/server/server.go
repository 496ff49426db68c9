package server

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/mdouchement/unionboard/internal/database"
	"github.com/mdouchement/unionboard/internal/realtime"
	"github.com/mdouchement/unionboard/internal/server/middlewares"
	"github.com/mdouchement/unionboard/internal/server/service"
	"github.com/mdouchement/unionboard/internal/storage"
	"github.com/sirupsen/logrus"
)

// An IOC is an Iversion Of Control pattern used to init the server package.
type IOC struct {
	Version  string
	Database database.Client
	Storage  *storage.FS
	Broker   realtime.Broker
	Metrics  *Metrics
	Logger   logrus.FieldLogger
	// JWT params
	SigningKey []byte
	TokenTTL   time.Duration
	Admins     map[string]string // email => argon2 hash
	// Content params
	Collections  []string         // Known collections, empty means any
	PublicCreate []string         // Collections accepting records from anyone
	Buckets      map[string]int64 // name => max size, zero means unlimited
	PingPeriod   time.Duration
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl IOC) *echo.Echo {
	if ctrl.Logger == nil {
		ctrl.Logger = logrus.StandardLogger()
	}
	if ctrl.Metrics == nil {
		ctrl.Metrics = NewMetrics()
	}
	if ctrl.Broker == nil {
		ctrl.Broker = realtime.NewMemory()
	}
	if ctrl.TokenTTL <= 0 {
		ctrl.TokenTTL = 24 * time.Hour
	}

	engine := echo.New()
	engine.Use(middleware.Recover())
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.DefaultCORSConfig))
	engine.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return c.IsWebSocket()
		},
	}))

	engine.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${status}] ${method} ${uri} (${bytes_in}) ${latency_human}\n",
	}))
	engine.Use(ctrl.Metrics.Middleware())
	engine.Binder = middlewares.NewBinder()
	// Error handler
	engine.HTTPErrorHandler = middlewares.HTTPErrorHandler(ctrl.Logger)

	engine.Pre(middleware.Rewrite(map[string]string{
		"/": "/version",
	}))

	////////////
	// Router //
	////////////

	router := engine.Group("")
	router.Use(middlewares.Auth(ctrl.SigningKey))
	admin := middlewares.RequireAdmin(nil)

	// generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})
	router.GET("/metrics", ctrl.Metrics.Handler())

	//
	// auth handlers
	//
	auth := &auth{
		admins:     ctrl.Admins,
		signingKey: ctrl.SigningKey,
		ttl:        ctrl.TokenTTL,
		logger:     ctrl.Logger,
	}
	router.POST("/auth/v1/token", auth.Token)

	//
	// collection handlers
	//
	collection := &collection{
		service: service.NewCollection(service.Params{
			Database: ctrl.Database,
			Broker:   ctrl.Broker,
			Logger:   ctrl.Logger,
		}),
		metrics: ctrl.Metrics,
	}
	publicCreate := set(ctrl.PublicCreate)
	creator := middlewares.RequireAdmin(func(c echo.Context) bool {
		return publicCreate[c.Param("collection")]
	})

	rest := router.Group("/rest/v1/:collection", known(ctrl.Collections))
	rest.GET("", collection.List)
	rest.POST("", collection.Create, creator)
	rest.PUT("/:id", collection.Update, admin)
	rest.DELETE("/:id", collection.Delete, admin)

	//
	// storage handlers
	//
	objects := &objects{
		db:      ctrl.Database,
		fs:      ctrl.Storage,
		buckets: ctrl.Buckets,
		metrics: ctrl.Metrics,
		logger:  ctrl.Logger,
	}
	router.GET("/storage/v1/object/public/:bucket/*", objects.Download)
	router.POST("/storage/v1/object/:bucket/*", objects.Upload, admin)
	router.DELETE("/storage/v1/object/:bucket", objects.Remove, admin)

	//
	// realtime handlers
	//
	changes := newChanges(ctrl.Broker, ctrl.PingPeriod, ctrl.Metrics, ctrl.Logger)
	router.GET("/realtime/v1/:collection", changes.Listen, known(ctrl.Collections))

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] || route.Method == echo.RouteNotFound {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}

// known returns a middleware rejecting the collections not listed.
// An empty list accepts any collection.
func known(collections []string) echo.MiddlewareFunc {
	allowed := set(collections)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(allowed) > 0 && !allowed[c.Param("collection")] {
				return apierror.NotFound("No such collection.")
			}
			return next(c)
		}
	}
}

func set(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}
