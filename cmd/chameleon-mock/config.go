package main

import (
	"fmt"
	"net/url"

	"github.com/chameleon-db/chameleon-mock/internal/admin"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective project configuration",
	Long: `Print the configuration after defaults, environment expansion and path
resolution, followed by the state of the .chameleon-mock/ directory.

DATABASE_URL, when set, replaces database.connection_string.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := resolveWorkDir()
		if err != nil {
			return err
		}

		factory := admin.NewManagerFactory(dir)
		loader := factory.CreateConfigLoader()
		cfg, err := loader.LoadOrDefault()
		if err != nil {
			return err
		}
		if cfg.Database.ConnectionString != "" {
			cfg.Database.ConnectionString = redactPassword(cfg.Database.ConnectionString)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", loader.Path())
		fmt.Fprint(out, string(data))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "# %s: %s", admin.DirName, factory.Status())
		fmt.Fprintln(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

// redactPassword masks the password of a connection URL
func redactPassword(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}
