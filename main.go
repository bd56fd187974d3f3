// safachat - streaming AI chat in the terminal, with local history and
// backend sync.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/sirupsen/logrus"

	"github.com/safadev/safachat/internal/cloud"
	"github.com/safadev/safachat/internal/config"
	"github.com/safadev/safachat/internal/model"
	"github.com/safadev/safachat/internal/remote"
	"github.com/safadev/safachat/internal/session"
	"github.com/safadev/safachat/internal/store"
	"github.com/safadev/safachat/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Printf("safachat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)

	dbPath := cfg.Storage.DatabasePath
	if dbPath == "" {
		dbPath, err = store.DefaultPath()
		if err != nil {
			return err
		}
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	cloudClient := cloud.NewClient(cfg.API.OpenRouterKey).WithLogger(log)
	if !cloudClient.IsConfigured() {
		fmt.Println(dimStyle.Render("No API key configured. Set OPENROUTER_API_KEY or add it to ~/.safachat/config.toml."))
	}

	var remoteClient *remote.Client
	if cfg.Backend.URL != "" && cfg.Backend.SessionCookie != "" {
		cookie := &http.Cookie{Name: cfg.Backend.CookieName, Value: cfg.Backend.SessionCookie}
		remoteClient = remote.NewClient(cfg.Backend.URL, cookie).WithLogger(log)
	}

	user := session.UserContext{ID: cfg.Backend.UserID, Email: cfg.Backend.UserEmail}
	if user.ID == "" {
		// local-only fallback identity so chats have an owner
		user.ID = "local"
	}

	ctrl := session.NewController(st, cloudClient, remoteClient, cfg.ReasoningSet(), user, log)

	ctx := context.Background()
	if err := ctrl.FinalizeStaleStreams(ctx); err != nil {
		log.WithError(err).Warn("could not clean up interrupted streams")
	}
	if err := ctrl.LoadChats(ctx); err != nil {
		return err
	}

	// live config reload for the API key and model list
	if path, err := config.Path(); err == nil {
		if w, werr := config.NewWatcher(path, 500*time.Millisecond, func(next *config.Config) {
			log.Info("configuration change detected, restart to apply")
		}, log); werr == nil {
			if werr := w.Watch(); werr == nil {
				defer w.Close()
			}
		}
	}

	// Ctrl+C stops the in-flight stream instead of killing the app
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if ctrl.IsStreaming() {
				ctrl.StopStreaming()
			} else {
				fmt.Println()
				os.Exit(0)
			}
		}
	}()

	return repl(ctx, ctrl, cfg, log)
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	switch cfg.Level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	if cfg.File != "" {
		if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600); err == nil {
			log.SetOutput(f)
		}
	}
	return log
}

// =============================================================================
// REPL
// =============================================================================

func repl(ctx context.Context, ctrl *session.Controller, cfg *config.Config, log *logrus.Logger) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(false)

	fmt.Println(titleStyle.Render("safachat " + Version))
	fmt.Println(dimStyle.Render("Type a message to chat, /help for commands."))
	printChats(ctrl)

	ctrl.SetStreamListener(func(content, reasoning string) {
		if reasoning != "" {
			fmt.Print(reasoningStyle.Render(reasoning))
		}
		fmt.Print(content)
	})

	for {
		input, err := line.Prompt(promptStyle.Render("> "))
		if err != nil {
			fmt.Println()
			return nil
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if quit := command(ctx, ctrl, cfg, input); quit {
				return nil
			}
			continue
		}

		if ctrl.CurrentChatID() == 0 {
			if _, err := ctrl.CreateNewChat(ctx, cfg.API.DefaultModel); err != nil {
				fmt.Println(errorStyle.Render("Could not create chat: " + err.Error()))
				continue
			}
		}

		if err := ctrl.SendMessage(ctx, input, ""); err != nil {
			fmt.Println()
			fmt.Println(errorStyle.Render(err.Error()))
			continue
		}
		fmt.Println()
	}
}

// command handles a slash command and reports whether to quit.
func command(ctx context.Context, ctrl *session.Controller, cfg *config.Config, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(dimStyle.Render(strings.TrimSpace(`
/new [model]    start a new chat
/list           list chats
/select <id>    switch to a chat
/delete <id>    delete a chat (here and on the backend)
/models         list known models
/stop           stop the current response
/quit           exit`)))

	case "/new":
		modelID := cfg.API.DefaultModel
		if len(fields) > 1 {
			modelID = fields[1]
		}
		chat, err := ctrl.CreateNewChat(ctx, modelID)
		if err != nil {
			fmt.Println(errorStyle.Render("Could not create chat: " + err.Error()))
			return false
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("Started chat %d (%s)", chat.ID, chat.Model)))

	case "/list":
		if err := ctrl.LoadChats(ctx); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		printChats(ctrl)

	case "/select":
		id, ok := parseID(fields)
		if !ok {
			fmt.Println(errorStyle.Render("Usage: /select <id>"))
			return false
		}
		if err := ctrl.SelectChat(ctx, id); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		printHistory(ctrl)

	case "/delete":
		id, ok := parseID(fields)
		if !ok {
			fmt.Println(errorStyle.Render("Usage: /delete <id>"))
			return false
		}
		if err := ctrl.DeleteChat(ctx, id); err != nil {
			fmt.Println(errorStyle.Render("Delete failed, chat kept: " + err.Error()))
			return false
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("Deleted chat %d", id)))

	case "/models":
		for _, m := range model.Models {
			fmt.Printf("  %-40s %s\n", m.ID, dimStyle.Render(m.Name))
		}

	case "/stop":
		ctrl.StopStreaming()

	default:
		fmt.Println(errorStyle.Render("Unknown command " + fields[0]))
	}
	return false
}

func parseID(fields []string) (int64, bool) {
	if len(fields) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func printChats(ctrl *session.Controller) {
	chats := ctrl.Chats()
	if len(chats) == 0 {
		fmt.Println(dimStyle.Render("No chats yet."))
		return
	}
	for _, chat := range chats {
		marker := "  "
		if chat.ID == ctrl.CurrentChatID() {
			marker = promptStyle.Render("* ")
		}
		fmt.Printf("%s[%d] %s %s\n", marker, chat.ID,
			util.TruncateRunes(chat.Title, 40),
			dimStyle.Render(chat.UpdatedAt.Format("2006-01-02 15:04")))
	}
}

func printHistory(ctrl *session.Controller) {
	for _, msg := range ctrl.Messages() {
		switch msg.Role {
		case model.RoleUser:
			fmt.Println(promptStyle.Render("you: ") + msg.Content)
		case model.RoleAssistant:
			if msg.Reasoning != "" {
				fmt.Println(reasoningStyle.Render(msg.Reasoning))
			}
			fmt.Println(msg.Content)
		}
	}
}
