// feedctl - терминальный клиент ленты промптов.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/UkralStul/promptkaart/internal/feed"
	"github.com/UkralStul/promptkaart/internal/remote"
)

const configName = ".feedctl"

var (
	// Global flags
	verbose bool
	timeout time.Duration

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "feedctl",
	Short: "Terminal client for the prompt feed",
	Long: `feedctl talks to the feed service over HTTP and websocket.

Settings come from flags, FEEDCTL_* environment variables and ~/.feedctl.yml
(written by "feedctl login").`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return loadConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.DurationVar(&timeout, "timeout", feed.DefaultTimeout, "Timeout of a single API call")
	flags.String("server", "http://localhost:8080", "Feed service base URL")
	flags.String("token", "", "Session token (or FEEDCTL_TOKEN)")
	flags.String("user", "", "Viewer id the token belongs to (or FEEDCTL_USER)")

	for _, name := range []string{"server", "token", "user"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(loginCmd, feedCmd, favoritesCmd, showCmd, likeCmd, bookmarkCmd,
		commentCmd, likeCommentCmd, searchCmd, watchCmd, statsCmd, postCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig читает ~/.feedctl.yml и FEEDCTL_*. Флаги имеют приоритет.
func loadConfig() error {
	viper.SetEnvPrefix("FEEDCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	path, err := configPath()
	if err != nil {
		return err
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return nil
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate home directory: %w", err)
	}
	return filepath.Join(home, configName+".yml"), nil
}

// saveSession запоминает токен и пользователя для следующих запусков.
func saveSession(token, userID string) error {
	viper.Set("token", token)
	viper.Set("user", userID)
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return os.Chmod(path, 0o600)
}

func newClient() (*remote.Client, error) {
	return remote.New(viper.GetString("server"),
		remote.WithToken(viper.GetString("token")),
		remote.WithTimeout(timeout),
		remote.WithLogger(logger),
	)
}

func session() feed.Session {
	return feed.Session{ViewerID: viper.GetString("user")}
}

// startEngine поднимает движок для области и дожидается первой загрузки.
func startEngine(ctx context.Context, scope feed.Scope, realtime bool) (*feed.Engine, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	e := feed.New(client, session(), scope, feed.Options{
		Timeout:  timeout,
		Realtime: realtime,
		Logger:   logger,
	})
	if err := e.Start(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}
