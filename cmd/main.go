package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/service-logbook/internal/auth"
	"github.com/ukydev/service-logbook/internal/db"
	"github.com/ukydev/service-logbook/internal/events"
	"github.com/ukydev/service-logbook/internal/handlers"
	"github.com/ukydev/service-logbook/internal/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment")
	}
	if level, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	log.Info("Connected to MongoDB")

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "servicelog"
	}
	database := client.Database(dbName)
	entryCollection := &db.MongoEntryCollection{Collection: database.Collection("services")}
	userCollection := &db.MongoUserCollection{Collection: database.Collection("users")}

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("Failed to create auth service")
	}

	publisher, err := events.NewPublisher()
	if err != nil {
		log.WithError(err).Warn("MQTT unavailable, entry events disabled")
	}
	defer publisher.Close()

	entryHandler := handlers.NewEntryHandler(entryCollection, publisher)
	authHandler := handlers.NewAuthHandler(authService, userCollection)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimitMiddleware()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("GET /api/auth/profile", authHandler.GetProfile)

	mux.HandleFunc("GET /api/vehicles/{vehicle}/entries", entryHandler.History)
	mux.HandleFunc("GET /api/vehicles/{vehicle}/entries/form", entryHandler.Form)
	mux.Handle("POST /api/vehicles/{vehicle}/entries",
		authMiddleware.RequireEntryWriter(http.HandlerFunc(entryHandler.Create)))
	mux.Handle("PUT /api/vehicles/{vehicle}/entries/{key}",
		authMiddleware.RequireEntryWriter(http.HandlerFunc(entryHandler.Update)))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := rateLimiter.RateLimit(120, 60)(authMiddleware.Authenticate(mux))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithField("port", port).Info("HTTP server listening")
	log.Fatal(http.ListenAndServe(":"+port, handler))
}
