package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/dreamina/pkg/auth"
	"github.com/psantana5/dreamina/pkg/config"
)

var (
	configCookie string
	hashKeySave  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change settings",
	Long: `Settings are read from DREAMINA_* environment variables, a .env file in the
working directory and the JSON config file, highest precedence first.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key value]",
	Short: "Write a setting to the config file",
	Example: `  dreamina config set --cookie "sessionid=..."
  dreamina config set request_timeout 45s`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected <key> <value>, got %d arguments", len(args))
		}
		if len(args) == 0 && !cmd.Flags().Changed("cookie") {
			return fmt.Errorf("nothing to set")
		}
		return nil
	},
	RunE: runConfigSet,
}

var configHashKeyCmd = &cobra.Command{
	Use:   "hash-key",
	Short: "Generate a gateway API key and its bcrypt hash",
	Args:  cobra.NoArgs,
	RunE:  runConfigHashKey,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configHashKeyCmd)

	configSetCmd.Flags().StringVar(&configCookie, "cookie", "", "session cookie")
	configHashKeyCmd.Flags().BoolVar(&hashKeySave, "save", false, "append the hash to gateway_api_key_hashes")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	v := settings.Viper()
	values := make(map[string]any, len(config.Settable))
	for _, k := range config.Settable {
		values[k] = v.Get(k)
	}
	values[config.KeyCookie] = settings.MaskedCookie()

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[string]any{
		"config_file":   settings.Path(),
		"cookie_source": settings.CookieSource(),
		"settings":      values,
	}
	return render(cmd.OutOrStdout(), out, func(t *tablewriter.Table) {
		t.Header("Key", "Value")
		t.Append("(config file)", settings.Path())
		t.Append("(cookie source)", settings.CookieSource())
		for _, k := range keys {
			t.Append(k, fmt.Sprint(values[k]))
		}
	})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	updates := map[string]any{}
	if cmd.Flags().Changed("cookie") {
		updates[config.KeyCookie] = strings.TrimSpace(configCookie)
	}
	if len(args) == 2 {
		updates[args[0]] = settingValue(args[0], args[1])
	}
	if err := config.Save(settings.Path(), updates); err != nil {
		return err
	}
	for k := range updates {
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", k, settings.Path())
	}
	return nil
}

// settingValue converts list settings; everything else is stored as text
// and decoded when loaded.
func settingValue(key, raw string) any {
	if key == config.KeyAPIKeyHashes {
		var hashes []string
		for _, h := range strings.Split(raw, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hashes = append(hashes, h)
			}
		}
		return hashes
	}
	return raw
}

func runConfigHashKey(cmd *cobra.Command, args []string) error {
	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	hash, err := auth.HashKey(key)
	if err != nil {
		return err
	}
	if hashKeySave {
		hashes := append(append([]string(nil), settings.APIKeyHashes...), hash)
		if err := config.Save(settings.Path(), map[string]any{config.KeyAPIKeyHashes: hashes}); err != nil {
			return err
		}
	}

	out := map[string]any{"api_key": key, "hash": hash, "saved": hashKeySave}
	return render(cmd.OutOrStdout(), out, func(t *tablewriter.Table) {
		t.Header("Field", "Value")
		t.Append("API key", key)
		t.Append("Hash", hash)
		t.Append("Saved", fmt.Sprint(hashKeySave))
	})
}
