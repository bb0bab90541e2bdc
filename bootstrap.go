package main

import (
	"fmt"

	"github.com/choraleia/parlance/pkg/config"
	"github.com/choraleia/parlance/pkg/db"
	"github.com/choraleia/parlance/pkg/service"
	"gorm.io/gorm/logger"
)

// NewApp opens storage and wires the chat pipeline from cfg.
func NewApp(cfg *config.AppConfig) (*App, error) {
	logLevel := logger.Silent
	if cfg.Server.Debug {
		logLevel = logger.Info
	}
	database, err := db.Open(db.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
		LogLevel: logLevel,
	})
	if err != nil {
		return nil, err
	}
	closeDB := func() error { return db.Close(database) }

	sessions, err := service.NewSessionStore(cfg.Session, database)
	if err != nil {
		_ = closeDB()
		return nil, err
	}

	files, err := service.NewDiskFileStore(database, cfg.Storage.UploadDir)
	if err != nil {
		_ = closeDB()
		return nil, err
	}

	provider := service.NewModelService(cfg.LLM)
	chatService := service.NewChatService(service.ChatDependencies{
		Chats:     service.NewGormChatStore(database),
		Files:     files,
		Sessions:  sessions,
		Extractor: service.NewContentExtractor(),
		Searcher:  service.NewGoogleSearcher(cfg.Search, provider, cfg.LLM.ClassifierModel),
		Provider:  provider,
		Corpus:    service.NewFSCodeCorpus(cfg.Storage.CodeRoot),
	}, service.ChatOptions{
		DefaultModel:    cfg.LLM.DefaultModel,
		ClassifierModel: cfg.LLM.ClassifierModel,
		WordLimit:       cfg.Limits.WordLimit,
		MaxPromptTokens: cfg.Limits.MaxPromptTokens,
		HistoryWindow:   cfg.Limits.HistoryWindow,
	})

	return &App{
		ChatService: chatService,
		Sessions:    sessions,
		close: func() error {
			if err := closeDB(); err != nil {
				return fmt.Errorf("close database: %w", err)
			}
			return nil
		},
	}, nil
}
