package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"posprint/internal/app"
	"posprint/internal/config"
	"posprint/internal/infrastructure/logger"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type globals struct {
	v          *viper.Viper
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globals{v: config.New()}

	cmd := &cobra.Command{
		Use:          "posprint",
		Short:        "Шлюз печати фискальных чеков для кассовых клиентов",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "YAML файл конфигурации (необязательно)")
	pf.String("registry", "", "файл реестра устройств (registry_path)")
	pf.String("log-level", "", "уровень логирования: debug, info, warn, error")
	pf.String("log-format", "", "формат логов: text или json")
	_ = g.v.BindPFlag("registry_path", pf.Lookup("registry"))
	_ = g.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = g.v.BindPFlag("log_format", pf.Lookup("log-format"))

	cmd.AddCommand(
		serveCmd(g),
		printCmd(g),
		closeCmd(g),
		statusCmd(g),
		devicesCmd(g),
		portsCmd(g),
	)
	return cmd
}

// load читает конфигурацию и собирает приложение.
func (g *globals) load() (*app.App, error) {
	cfg, err := config.Load(g.v, g.configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}
	return app.NewApp(cfg, log)
}
