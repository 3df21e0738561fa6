package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/alexfirerain/chatwork/internal/chatlog"
	"github.com/alexfirerain/chatwork/internal/client"
	"github.com/alexfirerain/chatwork/internal/config"
)

func main() {
	settings := flag.String("settings", "client.ini", "settings file (key = value;)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	_ = godotenv.Load()
	cfg, err := config.Load(*settings, logger)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		os.Exit(1)
	}

	writer := chatlog.NewWriter(client.JournalPath(cfg.LogFile, cfg.Name), cfg.LogQueue, logger)
	go writer.Run()
	journal := chatlog.New(chatlog.Categories{
		Inbound: cfg.LogInbound,
		Events:  cfg.LogEvents,
	}, writer, logger)

	err = run(cfg, *settings, journal, writer, logger)
	writer.Stop()
	writer.Wait()
	if err != nil {
		logger.Error("connection lost", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, settingsPath string, journal *chatlog.Logger, writer *chatlog.Writer, logger *slog.Logger) error {
	c, err := client.Dial(cfg.Addr(), client.Options{
		Settings:     cfg,
		SettingsPath: settingsPath,
		Display:      color.Output,
		Logger:       logger,
		Journal:      journal,
		Target:       writer,
	})
	if err != nil {
		return err
	}
	return c.Run(os.Stdin)
}
