package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tessro/elixir/internal/backend"
	"github.com/tessro/elixir/internal/config"
	"github.com/tessro/elixir/internal/wizard"
)

const configHeader = "# Elixir Configuration\n\n"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and editing elixir configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, with defaults and environment overrides applied.`,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long:  `Open the configuration file in your default editor.`,
	RunE:  runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a new configuration file with default values. In an interactive
terminal, asks for the server address and default backend first.`,
	RunE: runConfigInit,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value. Keys are dotted paths into the file.

Common keys:
  server.url                   Manual server address
  server.registry_url          Account registry address
  server.network               lan, wan, or empty
  discovery.enabled            true/false
  playback.backend             none, stream, external, embedded
  playback.seek_step           Seconds per seek key press
  playback.poll_interval       e.g. 5s
  backends.stream.sink         discard, -, or a file path
  backends.external.binaries   Comma-separated player binaries
  backends.embedded.window_id  Window to embed the player in
  log.level                    debug, info, warn, error

Examples:
  elixir config set server.url 192.168.1.20:8096
  elixir config set playback.backend external`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setConfigValue(args[0], args[1])
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if JSONOutput() {
		return json.NewEncoder(os.Stdout).Encode(cfg)
	}

	encoder := toml.NewEncoder(os.Stdout)
	encoder.Indent = "  "
	return encoder.Encode(cfg)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path := getConfigPath()
	_, err := os.Stat(path)
	exists := err == nil

	if JSONOutput() {
		return printJSON(map[string]interface{}{"path": path, "exists": exists})
	}
	fmt.Println(path)
	return nil
}

// getConfigPath is the file in use, or where a new one would be written.
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if p := config.FindConfigFile(); p != "" {
		return p
	}
	return config.DefaultPath()
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found at %s. Run 'elixir config init' first", configPath)
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"nano", "vim", "vi", "notepad"} {
			if _, err := exec.LookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set EDITOR environment variable")
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	return editorCmd.Run()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists at %s", configPath)
	}

	defaultCfg := config.Default()
	if wizard.IsTerminal() && !JSONOutput() {
		if err := promptInitialConfig(defaultCfg); err != nil {
			return err
		}
	}

	if err := writeConfig(configPath, defaultCfg); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]string{
			"status": "created",
			"path":   configPath,
		})
	}

	fmt.Printf("Created config file: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'elixir servers' to find a media server")
	fmt.Println("  2. Run 'elixir auth login' to sign in")
	return nil
}

// promptInitialConfig asks for the few values most setups change.
func promptInitialConfig(c *config.Config) error {
	var kinds []huh.Option[string]
	for _, k := range backend.Kinds() {
		kinds = append(kinds, huh.NewOption(string(k), string(k)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server address").
				Description("Leave empty to rely on local discovery").
				Placeholder("192.168.1.20:8096").
				Value(&c.Server.URL),
			huh.NewSelect[string]().
				Title("Default playback backend").
				Options(kinds...).
				Value(&c.Playback.Backend),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("cancelled: %w", err)
	}
	return nil
}

func writeConfig(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	encoder := toml.NewEncoder(&buf)
	encoder.Indent = "  "
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// setConfigValue updates one dotted key in the config file, creating the
// file if needed. The result must still load and validate.
func setConfigValue(key, value string) error {
	configPath := getConfigPath()

	raw := make(map[string]interface{})
	if data, err := os.ReadFile(configPath); err == nil {
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return fmt.Errorf("invalid key format. Use 'section.key' (e.g., server.url)")
	}

	typed, err := typedConfigValue(parts[len(parts)-1], value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	section := raw
	for _, p := range parts[:len(parts)-1] {
		next, ok := section[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			section[p] = next
		}
		section = next
	}
	section[parts[len(parts)-1]] = typed

	if err := checkRawConfig(raw); err != nil {
		return err
	}
	if err := writeConfig(configPath, raw); err != nil {
		return err
	}

	if JSONOutput() {
		return printJSON(map[string]string{
			"status": "updated",
			"key":    key,
			"value":  value,
		})
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

// typedConfigValue converts value to the TOML type the field expects.
func typedConfigValue(field, value string) (interface{}, error) {
	switch field {
	case "resolve_concurrency", "max_bitrate_kbps", "max_size_mb", "max_backups", "max_age_days":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("value must be an integer")
		}
		return int64(n), nil
	case "seek_step":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("value must be a number")
		}
		return f, nil
	case "enabled", "end_previous_on_start", "overlay":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("value must be true or false")
		}
		return b, nil
	case "native_extensions", "binaries", "containers", "video_codecs", "audio_codecs":
		var list []interface{}
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				list = append(list, v)
			}
		}
		return list, nil
	}
	return value, nil
}

// checkRawConfig round-trips raw through the typed config and validates it.
func checkRawConfig(raw map[string]interface{}) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	var c config.Config
	md, err := toml.Decode(buf.String(), &c)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config key: %s", undecoded[0])
	}
	c.ApplyDefaults()
	return c.Validate()
}
