package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strconv"

	"docqa/app/api"
	"docqa/model"
	"docqa/service"
	"docqa/store"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    50 * 1024 * 1024,
}

type Server struct {
	listenAddr string
	logger     *slog.Logger
}

func NewServer(addr string) *Server {
	return &Server{
		listenAddr: addr,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

// Run wires every collaborator exactly once and hands references to the
// handlers; nothing is constructed lazily per request.
func (s *Server) Run() {
	ctx := context.Background()

	dimension := 1536
	if v := os.Getenv("EMBEDDING_DIM"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal("invalid EMBEDDING_DIM: ", err)
		}
		dimension = d
	}

	port, _ := strconv.Atoi(os.Getenv("PG_PORT"))
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("PG_HOST"), port, os.Getenv("PG_USER"), os.Getenv("PG_PASS"), os.Getenv("PG_DB_NAME"))
	pool, err := store.NewPostgresStore(ctx, connStr, dimension)
	if err != nil {
		log.Fatal("error connecting to Postgres database: ", err)
	}

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error creating tables: ", err)
	}

	// The embedder probes the backend here; a bad credential kills the
	// process instead of failing on the first upload.
	embedder, err := model.NewOpenAIEmbedder(ctx, model.EmbedderConfig{
		BaseURL:   os.Getenv("OPENAI_BASE_URL"),
		APIKey:    os.Getenv("OPENAI_API_KEY"),
		Model:     os.Getenv("EMBEDDING_MODEL"),
		Dimension: dimension,
	})
	if err != nil {
		log.Fatal("embedding configuration error: ", err)
	}

	llm := model.NewOpenAIChat(model.ChatConfig{
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("LLM_MODEL"),
	}, s.logger)

	uploadDir := os.Getenv("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "./uploads"
	}
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		log.Fatal("error creating upload directory: ", err)
	}

	docService := service.New(pool, embedder, llm, s.logger)

	var (
		app             = fiber.New(config)
		checkHandler    = api.NewCheckHandler()
		documentHandler = api.NewDocumentHandler(docService, uploadDir, s.logger)
		check           = app.Group("/check")
		apiv1           = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	apiv1.Post("/documents", documentHandler.HandleUpload)
	apiv1.Get("/documents", documentHandler.HandleList)
	apiv1.Post("/documents/search", documentHandler.HandleSearch)
	apiv1.Post("/documents/answer", documentHandler.HandleAnswer)
	apiv1.Delete("/documents/clear_all", documentHandler.HandleClearAll)

	if err := app.Listen(s.listenAddr); err != nil {
		s.logger.Error("error starting server", "error", err.Error())
	}
}
