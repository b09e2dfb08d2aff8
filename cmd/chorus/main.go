package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	chorussdk "chorus/sdk/go"

	"chorus/internal/app"
	"chorus/internal/config"
	"chorus/internal/views"
)

var rootCmd = &cobra.Command{
	Use:   "chorus",
	Short: "Chorus task hierarchy console",
	Long: `Chorus shows a project's task hierarchy, its kanban board and the
locks agents hold while they size, break down, refine or implement tasks.

Settings come from chorus.yml (or --config), CHORUS_* environment variables
and flags, in increasing order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CHORUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./chorus.yml)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("caller-label", "", "label identifying this client")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("api-url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("caller-label", rootCmd.PersistentFlags().Lookup("caller-label"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(treeCmd())
	rootCmd.AddCommand(kanbanCmd())
	rootCmd.AddCommand(locksCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads the config file and layers env and flag overrides on top.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.LoadOptional(".")
	}
	if err != nil {
		return nil, err
	}
	if viper.IsSet("api-url") {
		cfg.API.URL = viper.GetString("api-url")
	}
	if viper.IsSet("caller-label") {
		cfg.Client.CallerLabel = viper.GetString("caller-label")
	}
	if viper.IsSet("log-level") {
		cfg.Logging.Level = viper.GetString("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*log.Logger, error) {
	return app.NewLogger(os.Stderr, cfg.Logging.Level)
}

// withApp opens the client stack for one command and closes it afterwards.
func withApp(ctx context.Context, fn func(context.Context, *app.App, *views.View) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	a, err := app.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, a.Views(os.Stdout, viper.GetBool("json")))
}

func printJSONOrText(v any, text string) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	fmt.Println(text)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(err error) {
	var apiErr *chorussdk.APIError
	if errors.As(err, &apiErr) {
		fmt.Printf("error: %s (code=%s", apiErr.Message, apiErr.Code)
		if apiErr.RequestID != "" {
			fmt.Printf(" request_id=%s", apiErr.RequestID)
		}
		fmt.Println(")")
		return
	}
	fmt.Println("error:", err)
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}
