// Package autoload initializes the global logger from the environment
// when imported for side effect.
package autoload

import (
	configx "github.com/6t3media/chatbot-backend/pkg/config"
	logx "github.com/6t3media/chatbot-backend/pkg/logger"
)

func init() {
	cfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(*cfg)
}
