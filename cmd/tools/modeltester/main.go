package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/zhouzirui/ai-chat/backend/internal/config"
	"github.com/zhouzirui/ai-chat/backend/internal/handler/ws"
	"github.com/zhouzirui/ai-chat/backend/internal/model/chat"
	"github.com/zhouzirui/ai-chat/backend/internal/service/ai"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file, using process environment")
	}

	mode := pflag.String("mode", "", "test mode: ping, pull, generate or ws")
	prompt := pflag.String("prompt", "Say hello in one sentence.", "prompt for generate, message for ws")
	wsURL := pflag.String("url", "ws://localhost:8080/ws", "websocket endpoint for ws mode")
	conversation := pflag.String("conversation", "", "conversation id to continue in ws mode")
	timeout := pflag.Duration("timeout", 3*time.Minute, "overall timeout")
	configFile := pflag.String("config", "", "optional config file")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := ai.NewClient(cfg.Model)
	logger := log.WithFields(log.Fields{"host": cfg.Model.Host, "model": client.Model()})

	switch *mode {
	case "ping":
		if err := client.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("model backend unhealthy")
		}
		logger.Info("model backend healthy")
	case "pull":
		start := time.Now()
		if err := client.Pull(ctx); err != nil {
			logger.WithError(err).Fatal("pull failed")
		}
		logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("model pulled")
	case "generate":
		runGenerate(ctx, client, cfg.Chat.SystemPrompt, *prompt, logger)
	case "ws":
		runWebsocket(ctx, *wsURL, chat.ChatRequest{Message: *prompt, ConversationID: *conversation})
	default:
		pflag.Usage()
		os.Exit(2)
	}
}

func runGenerate(ctx context.Context, client *ai.Client, systemPrompt, message string, logger *log.Entry) {
	full, err := ai.NewPromptBuilder(systemPrompt).Build(ctx, nil, message)
	if err != nil {
		logger.WithError(err).Fatal("failed to build prompt")
	}

	start := time.Now()
	reply, err := client.Generate(ctx, full)
	if err != nil {
		logger.WithError(err).Fatal("generate failed")
	}
	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("generate succeeded")
	fmt.Println(reply)
}

func runWebsocket(ctx context.Context, url string, req chat.ChatRequest) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		log.WithError(err).WithField("url", url).Fatal("websocket dial failed")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteJSON(req); err != nil {
		log.WithError(err).Fatal("failed to send chat frame")
	}

	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		log.WithError(err).Fatal("failed to read reply frame")
	}

	if frame.Type != ws.TypeReply {
		var failure ws.ErrorData
		_ = json.Unmarshal(frame.Data, &failure)
		log.WithFields(log.Fields{"status": failure.Status, "detail": failure.Detail}).Fatal("server returned an error frame")
	}

	var resp chat.ChatResponse
	if err := json.Unmarshal(frame.Data, &resp); err != nil {
		log.WithError(err).Fatal("malformed reply frame")
	}

	log.WithFields(log.Fields{
		"conversation_id": resp.ConversationID,
		"model":           resp.Model,
	}).Info("websocket turn completed")
	fmt.Println(strings.TrimSpace(resp.Response))
}
