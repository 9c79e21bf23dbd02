package server

import (
	"context"
	"net/http"
	"os"

	"github.com/umakantv/go-utils/httpserver"
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"

	"task-service/auth"
	cachepackage "task-service/cache"
	"task-service/config"
	"task-service/database"
	"task-service/handlers"
)

func StartServer() {
	// Initialize logger
	logger.Init(logger.LoggerConfig{
		CallerKey:  "file",
		TimeKey:    "timestamp",
		CallerSkip: 1,
	})

	logger.Info("Starting Task Service...")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	// Initialize database
	dbConn := database.InitializeDatabase(cfg)
	defer dbConn.Close()

	// Initialize cache
	cache := cachepackage.InitializeCache(cfg)
	defer cache.Close()

	// The server gate and the handlers share one authenticator
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authn := auth.NewAuthenticator(dbConn, cache, tokens)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(dbConn, cache, tokens, authn)
	taskHandler := handlers.NewTaskHandler(dbConn, cache, authn)

	// Create HTTP server with authentication
	server := httpserver.New(cfg.Port, authn.CheckAuth)

	server.Register(httpserver.Route{
		Name:     "HealthCheck",
		Method:   "GET",
		Path:     "/health",
		AuthType: "none",
	}, httpserver.HandlerFunc(func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "task-service"}`))
	}))

	// Account routes. Literal paths register before /users/{id} so the mux
	// never treats "me" or "login" as an identifier.
	server.Register(httpserver.Route{
		Name:     "Register",
		Method:   "POST",
		Path:     "/users",
		AuthType: "none",
	}, httpserver.HandlerFunc(userHandler.Register))

	server.Register(httpserver.Route{
		Name:     "Login",
		Method:   "POST",
		Path:     "/users/login",
		AuthType: "none",
	}, httpserver.HandlerFunc(userHandler.Login))

	server.Register(httpserver.Route{
		Name:     "Logout",
		Method:   "POST",
		Path:     "/users/logout",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.Logout))

	server.Register(httpserver.Route{
		Name:     "LogoutAll",
		Method:   "POST",
		Path:     "/users/logoutAll",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.LogoutAll))

	server.Register(httpserver.Route{
		Name:     "ListUsers",
		Method:   "GET",
		Path:     "/users",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.GetUsers))

	server.Register(httpserver.Route{
		Name:     "GetMe",
		Method:   "GET",
		Path:     "/users/me",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.GetMe))

	server.Register(httpserver.Route{
		Name:     "UpdateMe",
		Method:   "PATCH",
		Path:     "/users/me",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.UpdateMe))

	server.Register(httpserver.Route{
		Name:     "UploadAvatar",
		Method:   "POST",
		Path:     "/users/me/avatar",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.UploadAvatar))

	server.Register(httpserver.Route{
		Name:     "DeleteAvatar",
		Method:   "DELETE",
		Path:     "/users/me/avatar",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.DeleteAvatar))

	server.Register(httpserver.Route{
		Name:     "GetAvatar",
		Method:   "GET",
		Path:     "/users/{id}/avatar",
		AuthType: "none",
	}, httpserver.HandlerFunc(userHandler.GetAvatar))

	server.Register(httpserver.Route{
		Name:     "GetUser",
		Method:   "GET",
		Path:     "/users/{id}",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.GetUser))

	server.Register(httpserver.Route{
		Name:     "UpdateUser",
		Method:   "PATCH",
		Path:     "/users/{id}",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.UpdateUser))

	server.Register(httpserver.Route{
		Name:     "DeleteUser",
		Method:   "DELETE",
		Path:     "/users/{id}",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(userHandler.DeleteUser))

	// Task routes
	server.Register(httpserver.Route{
		Name:     "CreateTask",
		Method:   "POST",
		Path:     "/tasks",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(taskHandler.CreateTask))

	server.Register(httpserver.Route{
		Name:     "ListTasks",
		Method:   "GET",
		Path:     "/tasks",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(taskHandler.GetTasks))

	server.Register(httpserver.Route{
		Name:     "GetTask",
		Method:   "GET",
		Path:     "/tasks/{id}",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(taskHandler.GetTask))

	server.Register(httpserver.Route{
		Name:     "UpdateTask",
		Method:   "PATCH",
		Path:     "/tasks/{id}",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(taskHandler.UpdateTask))

	server.Register(httpserver.Route{
		Name:     "DeleteTask",
		Method:   "DELETE",
		Path:     "/tasks/{id}",
		AuthType: "bearer",
	}, httpserver.HandlerFunc(taskHandler.DeleteTask))

	logger.Info("Task Service started on port " + cfg.Port)

	// Start server
	if err := server.Start(); err != nil {
		logger.Error("Server failed to start", zap.Error(err))
		os.Exit(1)
	}
}
