package main

import (
	"github.com/rs/zerolog/log"

	"github.com/6t3media/chatbot-backend/chat/completion"
	"github.com/6t3media/chatbot-backend/chat/lead"
	"github.com/6t3media/chatbot-backend/chat/notify"
	"github.com/6t3media/chatbot-backend/chat/orchestrator"
	"github.com/6t3media/chatbot-backend/chat/prompt"
	configx "github.com/6t3media/chatbot-backend/pkg/config"
	_ "github.com/6t3media/chatbot-backend/pkg/logger/autoload"
	pipedrivex "github.com/6t3media/chatbot-backend/pkg/pipedrive"
	slackx "github.com/6t3media/chatbot-backend/pkg/slack"
	"github.com/6t3media/chatbot-backend/server"
)

func main() {
	openaiCfg := configx.MustNew[completion.Config]("OPENAI")
	completer, err := completion.NewClient(*openaiCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize completion client")
	}

	// CRM and webhook are optional: a nil client degrades the lead
	// workflow gracefully instead of failing startup.
	crmCfg := configx.MustNew[pipedrivex.Config]("PIPEDRIVE")
	crmClient := pipedrivex.NewClient(*crmCfg)
	if crmClient == nil {
		log.Warn().Msg("pipedrive not configured; leads will not be recorded")
	}

	slackCfg := configx.MustNew[slackx.Config]("SLACK")
	slackClient := slackx.NewClient(*slackCfg)
	if slackClient == nil {
		log.Warn().Msg("slack webhook not configured; lead notifications disabled")
	}

	orch, err := orchestrator.New(
		completer,
		lead.NewResolver(crmClient),
		notify.NewWebhook(slackClient),
		prompt.LoadPromptSet().System,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize orchestrator")
	}

	serverCfg := configx.MustNew[server.Config]("SERVER")
	r := server.NewRouter(orch, *serverCfg)

	log.Info().Str("addr", serverCfg.ListenAddr).Msg("starting chat relay")
	if err := r.Run(serverCfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}
